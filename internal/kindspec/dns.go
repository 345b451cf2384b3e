package kindspec

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/rawblock/anchor-engine/internal/carrier"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// SupportedTLDs are the TLDs Anchor Domains recognises.
var SupportedTLDs = []string{".btc", ".sat", ".anchor", ".anc", ".bit"}

// MaxDomainLength bounds a domain name including its TLD.
const MaxDomainLength = 255

// DNSOperation is the first byte of a Kind 10 body.
type DNSOperation uint8

const (
	DNSRegister DNSOperation = 0x01
	DNSUpdate   DNSOperation = 0x02
	DNSTransfer DNSOperation = 0x03
)

var errInvalidDNSOperation = fmt.Errorf("kindspec: invalid dns operation")
var errUnsupportedTLD = fmt.Errorf("kindspec: unsupported tld")
var errInvalidIPv4 = fmt.Errorf("kindspec: invalid ipv4 record value")
var errInvalidIPv6 = fmt.Errorf("kindspec: invalid ipv6 record value")
var errMXNeedsPriority = fmt.Errorf("kindspec: mx record requires priority")
var errSRVNeedsFields = fmt.Errorf("kindspec: srv record requires priority, weight, and port")

func dnsOperationFromByte(b byte) (DNSOperation, error) {
	switch DNSOperation(b) {
	case DNSRegister, DNSUpdate, DNSTransfer:
		return DNSOperation(b), nil
	default:
		return 0, errInvalidDNSOperation
	}
}

// DNSSpec is Kind 10: domain registration/update/transfer (§4.5 "Domain
// state machine"). Not supported by OpReturn — DNS ownership lives in a
// spendable UTXO at vout 0, and OpReturn outputs are unspendable.
type DNSSpec struct {
	Operation DNSOperation
	Name      string
	Records   []models.DNSRecord
}

func (d DNSSpec) KindID() uint8 { return models.KindDNS }

func (d DNSSpec) ToBytes() []byte {
	nameBytes := []byte(d.Name)
	buf := make([]byte, 0, 2+len(nameBytes))
	buf = append(buf, byte(d.Operation), byte(len(nameBytes)))
	buf = append(buf, nameBytes...)
	for _, r := range d.Records {
		buf = append(buf, encodeDNSRecord(r)...)
	}
	return buf
}

// DNSFromBytes parses a Kind 10 body (§ Payload Format).
func DNSFromBytes(body []byte) (DNSSpec, error) {
	if len(body) < 2 {
		return DNSSpec{}, ErrPayloadTooShort{Expected: 2, Actual: len(body)}
	}
	op, err := dnsOperationFromByte(body[0])
	if err != nil {
		return DNSSpec{}, err
	}
	nameLen := int(body[1])
	if len(body) < 2+nameLen {
		return DNSSpec{}, ErrPayloadTooShort{Expected: 2 + nameLen, Actual: len(body)}
	}
	name := string(body[2 : 2+nameLen])

	var records []models.DNSRecord
	offset := 2 + nameLen
	for offset+4 <= len(body) {
		rec, consumed, err := decodeDNSRecord(body, offset)
		if err != nil {
			return DNSSpec{}, err
		}
		records = append(records, rec)
		offset += consumed
	}

	return DNSSpec{Operation: op, Name: name, Records: records}, nil
}

func (d DNSSpec) Validate() error {
	if err := validateDomainName(d.Name); err != nil {
		return err
	}
	for _, r := range d.Records {
		if err := validateDNSRecord(r); err != nil {
			return err
		}
	}
	return nil
}

func (d DNSSpec) RequiresAnchor() bool {
	return d.Operation == DNSUpdate || d.Operation == DNSTransfer
}

func (d DNSSpec) SupportedCarriers() []carrier.Type {
	return []carrier.Type{carrier.WitnessData, carrier.Inscription, carrier.Stamps}
}

func (d DNSSpec) RecommendedCarrier() carrier.Type { return carrier.WitnessData }

func validateDomainName(name string) error {
	if len(name) == 0 || len(name) > MaxDomainLength {
		return errUnsupportedTLD
	}
	lower := strings.ToLower(name)
	for _, tld := range SupportedTLDs {
		if strings.HasSuffix(lower, tld) {
			return nil
		}
	}
	return errUnsupportedTLD
}

func validateDNSRecord(r models.DNSRecord) error {
	switch r.Type {
	case models.RecordA:
		if ip := net.ParseIP(r.Value).To4(); ip == nil {
			return errInvalidIPv4
		}
	case models.RecordAAAA:
		ip := net.ParseIP(r.Value)
		if ip == nil || ip.To4() != nil {
			return errInvalidIPv6
		}
	case models.RecordMX:
		if r.Priority == nil {
			return errMXNeedsPriority
		}
	case models.RecordSRV:
		if r.Priority == nil || r.Weight == nil || r.Port == nil {
			return errSRVNeedsFields
		}
	}
	return nil
}

func encodeDNSRecord(r models.DNSRecord) []byte {
	data := encodeDNSRecordData(r)
	out := make([]byte, 0, 4+len(data))
	out = append(out, byte(r.Type))
	var ttlBytes [2]byte
	binary.BigEndian.PutUint16(ttlBytes[:], r.TTL)
	out = append(out, ttlBytes[:]...)
	out = append(out, byte(len(data)))
	out = append(out, data...)
	return out
}

func encodeDNSRecordData(r models.DNSRecord) []byte {
	switch r.Type {
	case models.RecordA:
		ip := net.ParseIP(r.Value).To4()
		if ip == nil {
			return nil
		}
		return append([]byte(nil), ip...)
	case models.RecordAAAA:
		ip := net.ParseIP(r.Value).To16()
		if ip == nil {
			return nil
		}
		return append([]byte(nil), ip...)
	case models.RecordCNAME, models.RecordNS, models.RecordTXT:
		return []byte(r.Value)
	case models.RecordMX:
		priority := uint16(10)
		if r.Priority != nil {
			priority = *r.Priority
		}
		buf := make([]byte, 2, 2+len(r.Value))
		binary.BigEndian.PutUint16(buf, priority)
		return append(buf, r.Value...)
	case models.RecordSRV:
		var priority, weight, port uint16
		if r.Priority != nil {
			priority = *r.Priority
		}
		if r.Weight != nil {
			weight = *r.Weight
		}
		if r.Port != nil {
			port = *r.Port
		}
		buf := make([]byte, 6, 6+len(r.Value))
		binary.BigEndian.PutUint16(buf[0:2], priority)
		binary.BigEndian.PutUint16(buf[2:4], weight)
		binary.BigEndian.PutUint16(buf[4:6], port)
		return append(buf, r.Value...)
	default:
		return nil
	}
}

func decodeDNSRecord(body []byte, offset int) (models.DNSRecord, int, error) {
	if len(body) < offset+4 {
		return models.DNSRecord{}, 0, ErrPayloadTooShort{Expected: offset + 4, Actual: len(body)}
	}
	recType := models.RecordType(body[offset])
	ttl := binary.BigEndian.Uint16(body[offset+1 : offset+3])
	dataLen := int(body[offset+3])
	if len(body) < offset+4+dataLen {
		return models.DNSRecord{}, 0, ErrPayloadTooShort{Expected: offset + 4 + dataLen, Actual: len(body)}
	}
	data := body[offset+4 : offset+4+dataLen]

	rec, err := parseDNSRecordData(recType, ttl, data)
	if err != nil {
		return models.DNSRecord{}, 0, err
	}
	return rec, 4 + dataLen, nil
}

func parseDNSRecordData(recType models.RecordType, ttl uint16, data []byte) (models.DNSRecord, error) {
	rec := models.DNSRecord{Type: recType, TTL: ttl}
	switch recType {
	case models.RecordA:
		if len(data) != 4 {
			return models.DNSRecord{}, errInvalidDNSOperation
		}
		rec.Value = net.IP(data).String()
	case models.RecordAAAA:
		if len(data) != 16 {
			return models.DNSRecord{}, errInvalidDNSOperation
		}
		rec.Value = net.IP(data).String()
	case models.RecordCNAME, models.RecordNS, models.RecordTXT:
		rec.Value = string(data)
	case models.RecordMX:
		if len(data) < 3 {
			return models.DNSRecord{}, errMXNeedsPriority
		}
		priority := binary.BigEndian.Uint16(data[0:2])
		rec.Priority = &priority
		rec.Value = string(data[2:])
	case models.RecordSRV:
		if len(data) < 7 {
			return models.DNSRecord{}, errSRVNeedsFields
		}
		priority := binary.BigEndian.Uint16(data[0:2])
		weight := binary.BigEndian.Uint16(data[2:4])
		port := binary.BigEndian.Uint16(data[4:6])
		rec.Priority = &priority
		rec.Weight = &weight
		rec.Port = &port
		rec.Value = string(data[6:])
	default:
		return models.DNSRecord{}, errInvalidDNSOperation
	}
	return rec, nil
}
