/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of nsrouter.
 *
 * nsrouter is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * nsrouter is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package suffix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublicSuffixResolver(t *testing.T) {
	r := PublicSuffixResolver{}
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"www.example.com", "example.com", false},
		{"a.b.example.co.uk", "example.co.uk", false},
		{"example.com.", "example.com", false},
		{"com", "", true},
		{"co.uk", "", true},
	}
	for _, tt := range tests {
		got, err := r.BaseDomain(tt.name)
		if tt.wantErr {
			require.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		require.Equal(t, tt.want, got, tt.name)
	}
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(map[string]string{
		"example.com":      "example.com",
		"internal":         "corp.internal",
		"deep.example.org": "deep.example.org",
	})

	got, err := r.BaseDomain("www.example.com")
	require.NoError(t, err)
	require.Equal(t, "example.com", got)

	got, err = r.BaseDomain("svc.team.internal")
	require.NoError(t, err)
	require.Equal(t, "corp.internal", got)

	_, err = r.BaseDomain("unknown.test")
	require.Error(t, err)
}

func TestFileResolver(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "suffixes.txt")
	data := "# private suffixes\nco.uk\ninternal\n"
	require.NoError(t, os.WriteFile(file, []byte(data), 0o644))

	r, err := NewFileResolver(nil, file, false)
	require.NoError(t, err)
	defer r.Close()

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"www.example.co.uk", "example.co.uk", false},
		{"svc.team.internal", "team.internal", false},
		{"www.example.com", "example.com", false}, // fallback, last label as suffix
		{"com", "", true},
	}
	for _, tt := range tests {
		got, err := r.BaseDomain(tt.name)
		if tt.wantErr {
			require.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		require.Equal(t, tt.want, got, tt.name)
	}
}
