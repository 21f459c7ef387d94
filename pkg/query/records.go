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

package query

import (
	"fmt"
	"net/netip"
	"regexp"

	"github.com/miekg/dns"
)

// Record construction helpers for the common RR types. All helpers accept
// names in canonical form and return records with FQDN owner names.

func header(name string, rtype uint16, ttl uint32) dns.RR_Header {
	return dns.RR_Header{
		Name:   dns.Fqdn(name),
		Rrtype: rtype,
		Class:  dns.ClassINET,
		Ttl:    ttl,
	}
}

// We use a regex instead of the public suffix list so that internal
// domains that do not end in a real TLD still pass.
var domainRegex = regexp.MustCompile(`^(?:[a-zA-Z0-9\-_]+\.)+(?:[a-zA-Z0-9\-_]+)\.?$`)

func checkDomain(s string) error {
	if !domainRegex.MatchString(s) {
		return fmt.Errorf("%q is not a valid domain", s)
	}
	return nil
}

// NewA builds an A record. ip must be an IPv4 address.
func NewA(name string, ip netip.Addr, ttl uint32) (*dns.A, error) {
	ip = ip.Unmap()
	if !ip.Is4() {
		return nil, fmt.Errorf("%s is not an IPv4 address", ip)
	}
	return &dns.A{Hdr: header(name, dns.TypeA, ttl), A: ip.AsSlice()}, nil
}

// NewAAAA builds an AAAA record. ip must be an IPv6 address.
func NewAAAA(name string, ip netip.Addr, ttl uint32) (*dns.AAAA, error) {
	if !ip.Is6() || ip.Is4In6() {
		return nil, fmt.Errorf("%s is not an IPv6 address", ip)
	}
	return &dns.AAAA{Hdr: header(name, dns.TypeAAAA, ttl), AAAA: ip.AsSlice()}, nil
}

// NewMX builds an MX record. Lower preference values have higher priority.
func NewMX(name, mx string, preference uint16, ttl uint32) (*dns.MX, error) {
	if err := checkDomain(mx); err != nil {
		return nil, err
	}
	return &dns.MX{Hdr: header(name, dns.TypeMX, ttl), Preference: preference, Mx: dns.Fqdn(mx)}, nil
}

// NewTXT builds a TXT record. Text longer than 255 octets is split into
// multiple character strings.
func NewTXT(name, text string, ttl uint32) *dns.TXT {
	var chunks []string
	for len(text) > 255 {
		chunks = append(chunks, text[:255])
		text = text[255:]
	}
	chunks = append(chunks, text)
	return &dns.TXT{Hdr: header(name, dns.TypeTXT, ttl), Txt: chunks}
}

// NewCNAME builds a CNAME record.
func NewCNAME(name, target string, ttl uint32) (*dns.CNAME, error) {
	if err := checkDomain(target); err != nil {
		return nil, err
	}
	return &dns.CNAME{Hdr: header(name, dns.TypeCNAME, ttl), Target: dns.Fqdn(target)}, nil
}

// NewNS builds an NS record.
func NewNS(name, ns string, ttl uint32) (*dns.NS, error) {
	if err := checkDomain(ns); err != nil {
		return nil, err
	}
	return &dns.NS{Hdr: header(name, dns.TypeNS, ttl), Ns: dns.Fqdn(ns)}, nil
}

// NewPTR builds a PTR record.
func NewPTR(name, target string, ttl uint32) (*dns.PTR, error) {
	if err := checkDomain(target); err != nil {
		return nil, err
	}
	return &dns.PTR{Hdr: header(name, dns.TypePTR, ttl), Ptr: dns.Fqdn(target)}, nil
}

// SOAOptions are the timer fields of a SOA record. Zero fields take the
// defaults suited to small and stable zones.
type SOAOptions struct {
	Refresh uint32 // default 86400
	Retry   uint32 // default 7200
	Expire  uint32 // default 3600000
	Minttl  uint32 // default 172800
}

// NewSOA builds a SOA record. mbox is the domain encoded admin mailbox,
// e.g. admin@example.com is written admin.example.com.
func NewSOA(zone, primaryNS, mbox string, serial uint32, opts SOAOptions, ttl uint32) (*dns.SOA, error) {
	if err := checkDomain(primaryNS); err != nil {
		return nil, err
	}
	if opts.Refresh == 0 {
		opts.Refresh = 86400
	}
	if opts.Retry == 0 {
		opts.Retry = 7200
	}
	if opts.Expire == 0 {
		opts.Expire = 3600000
	}
	if opts.Minttl == 0 {
		opts.Minttl = 172800
	}
	return &dns.SOA{
		Hdr:     header(zone, dns.TypeSOA, ttl),
		Ns:      dns.Fqdn(primaryNS),
		Mbox:    dns.Fqdn(mbox),
		Serial:  serial,
		Refresh: opts.Refresh,
		Retry:   opts.Retry,
		Expire:  opts.Expire,
		Minttl:  opts.Minttl,
	}, nil
}

// NewSRV builds a SRV record. name is in _service._proto.name form.
func NewSRV(name, target string, port, priority, weight uint16, ttl uint32) (*dns.SRV, error) {
	if err := checkDomain(target); err != nil {
		return nil, err
	}
	return &dns.SRV{
		Hdr:      header(name, dns.TypeSRV, ttl),
		Priority: priority,
		Weight:   weight,
		Port:     port,
		Target:   dns.Fqdn(target),
	}, nil
}

var validCAATags = map[string]struct{}{"issue": {}, "issuewild": {}, "iodef": {}}

// NewCAA builds a CAA record. tag must be one of issue, issuewild, iodef.
func NewCAA(name string, flag uint8, tag, value string, ttl uint32) (*dns.CAA, error) {
	if _, ok := validCAATags[tag]; !ok {
		return nil, fmt.Errorf("invalid tag %q, must be issue, issuewild or iodef", tag)
	}
	return &dns.CAA{Hdr: header(name, dns.TypeCAA, ttl), Flag: flag, Tag: tag, Value: value}, nil
}
