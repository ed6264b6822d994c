package pix

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const brCodePrefix = "000201"

type BRCode struct {
	Key           string
	Amount        string
	TransactionID string
}

var amountRx = regexp.MustCompile(`^\d{1,10}\.\d{2}$`)

// ParseBRCode parses a Pix "copia e cola" (BR Code / EMV MPM) and extracts key/amount/txid.
// https://www.bcb.gov.br/content/estabilidadefinanceira/spb_docs/ManualBRCode.pdf.
func ParseBRCode(copyPaste string) (BRCode, error) {
	s := strings.TrimSpace(copyPaste)
	if len(s) < 8 {
		return BRCode{}, fmt.Errorf("invalid PIX code: too short")
	}

	if !strings.HasPrefix(s, brCodePrefix) {
		return BRCode{}, fmt.Errorf("invalid PIX code: missing payload format indicator")
	}

	root, err := tlvDecode(s)
	if err != nil {
		return BRCode{}, err
	}

	var out BRCode

	// Tag 54 - Amount.
	out.Amount = tlvFirstValue(root, "54")
	if out.Amount != "" && !amountRx.MatchString(out.Amount) {
		return BRCode{}, errors.New("invalid amount: use format 123.45")
	}

	// TxID (62/05) is optional; "***" means absent.
	if ad := tlvFirst(root, "62"); ad != nil {
		subs, _ := tlvDecode(ad.Value)
		if tx := tlvFirstValue(subs, "05"); tx != "" && tx != "***" {
			out.TransactionID = tx
		}
	}

	// Merchant Account Information (26..51). Look for GUI "br.gov.bcb.pix".
	found := false
	for _, t := range root {
		idn, _ := strconv.Atoi(t.ID)
		if idn < 26 || idn > 51 {
			continue
		}
		subs, _ := tlvDecode(t.Value)
		if strings.ToLower(tlvFirstValue(subs, "00")) != "br.gov.bcb.pix" {
			continue
		}
		found = true
		// Static: key under subtag 01. Dynamic: URL under subtag 25.
		if key := tlvFirstValue(subs, "01"); key != "" {
			out.Key = key
		} else {
			out.Key = tlvFirstValue(subs, "25")
		}
		break
	}
	if !found {
		return BRCode{}, errors.New("invalid PIX code: no pix merchant account")
	}

	return out, nil
}

// isBRCode reports whether s decodes as a BR Code with a pix merchant account.
func isBRCode(s string) bool {
	_, err := ParseBRCode(s)
	return err == nil
}

// tlv is a TLV (Tag-Length-Value) pair.
type tlv struct{ ID, Value string }

func tlvDecode(s string) ([]tlv, error) {
	var out []tlv
	for i := 0; i < len(s); {
		if i+4 > len(s) {
			return nil, errors.New("truncated TLV header")
		}
		id := s[i : i+2]
		ln, err := strconv.Atoi(s[i+2 : i+4])
		if err != nil || ln < 1 {
			return nil, fmt.Errorf("bad length for ID %s", id)
		}
		i += 4
		if i+ln > len(s) {
			return nil, fmt.Errorf("truncated value for ID %s", id)
		}
		out = append(out, tlv{ID: id, Value: s[i : i+ln]})
		i += ln
	}
	return out, nil
}

func tlvFirst(tlvs []tlv, id string) *tlv {
	for i := range tlvs {
		if tlvs[i].ID == id {
			return &tlvs[i]
		}
	}
	return nil
}

func tlvFirstValue(tlvs []tlv, id string) string {
	if t := tlvFirst(tlvs, id); t != nil {
		return t.Value
	}
	return ""
}

// Encode renders c as a static BR Code, including the trailing CRC16 checksum.
func (c BRCode) Encode(merchantName, city string) string {
	merchant := tlvEncode("00", "br.gov.bcb.pix") + tlvEncode("01", c.Key)
	txID := c.TransactionID
	if txID == "" {
		txID = "***"
	}

	var b strings.Builder
	b.WriteString(tlvEncode("00", "01"))
	b.WriteString(tlvEncode("26", merchant))
	b.WriteString(tlvEncode("52", "0000"))
	b.WriteString(tlvEncode("53", "986"))
	if c.Amount != "" {
		b.WriteString(tlvEncode("54", c.Amount))
	}
	b.WriteString(tlvEncode("58", "BR"))
	b.WriteString(tlvEncode("59", truncate(merchantName, 25)))
	b.WriteString(tlvEncode("60", truncate(city, 15)))
	b.WriteString(tlvEncode("62", tlvEncode("05", txID)))
	b.WriteString("6304")
	return b.String() + fmt.Sprintf("%04X", crc16(b.String()))
}

func tlvEncode(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// crc16 is the CRC-16/CCITT-FALSE checksum required by the BR Code layout.
func crc16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
