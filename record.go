package authcore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/carebridge/authcore/scope"
)

const tokenRecordVersionV1 = 1

const maxRecordFieldLen = 65535

var errRecordCorrupt = errors.New("token record corrupt")

// encodeTokenRecord renders a record into the versioned binary layout used
// by the Redis store. Strings are uint16 length-prefixed; timestamps are
// big-endian int64 Unix seconds with zero meaning unset.
func encodeTokenRecord(record *TokenRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(tokenRecordVersionV1)
	buf.WriteByte(byte(record.Type))

	for _, s := range []string{
		record.LookupID,
		record.PrincipalID,
		record.PatientID,
		record.OrgID,
		record.CredentialID,
		record.SessionID,
		string(record.Role),
		record.RedirectURI,
		record.ReplacedByID,
	} {
		if err := writeRecordString(&buf, s); err != nil {
			return nil, err
		}
	}

	if len(record.Scopes) > maxRecordFieldLen {
		return nil, errors.New("token record scope list too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Scopes))); err != nil {
		return nil, err
	}
	for _, s := range record.Scopes {
		if err := writeRecordString(&buf, string(s)); err != nil {
			return nil, err
		}
	}

	for _, ts := range []int64{
		record.CreatedAt,
		record.ExpiresAt,
		record.UsedAt,
		record.RevokedAt,
		record.RotatedAt,
	} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	buf.Write(record.SecretDigest[:])

	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (*TokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errRecordCorrupt
	}
	if version != tokenRecordVersionV1 {
		return nil, errRecordCorrupt
	}

	typ, err := reader.ReadByte()
	if err != nil {
		return nil, errRecordCorrupt
	}

	record := &TokenRecord{Type: TokenType(typ)}
	if !record.Type.valid() {
		return nil, errRecordCorrupt
	}

	strs := []*string{
		&record.LookupID,
		&record.PrincipalID,
		&record.PatientID,
		&record.OrgID,
		&record.CredentialID,
		&record.SessionID,
		nil, // Role, handled below
		&record.RedirectURI,
		&record.ReplacedByID,
	}
	for i, dst := range strs {
		s, err := readRecordString(reader)
		if err != nil {
			return nil, errRecordCorrupt
		}
		if i == 6 {
			record.Role = scope.Role(s)
			continue
		}
		*dst = s
	}

	var scopeCount uint16
	if err := binary.Read(reader, binary.BigEndian, &scopeCount); err != nil {
		return nil, errRecordCorrupt
	}
	if scopeCount > 0 {
		record.Scopes = make([]scope.Scope, 0, scopeCount)
		for i := 0; i < int(scopeCount); i++ {
			s, err := readRecordString(reader)
			if err != nil {
				return nil, errRecordCorrupt
			}
			record.Scopes = append(record.Scopes, scope.Scope(s))
		}
	}

	for _, dst := range []*int64{
		&record.CreatedAt,
		&record.ExpiresAt,
		&record.UsedAt,
		&record.RevokedAt,
		&record.RotatedAt,
	} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, errRecordCorrupt
		}
	}

	if _, err := io.ReadFull(reader, record.SecretDigest[:]); err != nil {
		return nil, errRecordCorrupt
	}

	return record, nil
}

func writeRecordString(buf *bytes.Buffer, s string) error {
	if len(s) > maxRecordFieldLen {
		return errors.New("token record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readRecordString(reader *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
