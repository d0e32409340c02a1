package framing

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	srvErrors "github.com/kubev2v/logdriver-e2e/pkg/errors"
)

const (
	fieldSource          protowire.Number = 1
	fieldTimeNano        protowire.Number = 2
	fieldLine            protowire.Number = 3
	fieldPartial         protowire.Number = 4
	fieldPartialMetadata protowire.Number = 5

	fieldMetaLast    protowire.Number = 1
	fieldMetaID      protowire.Number = 2
	fieldMetaOrdinal protowire.Number = 3
)

// Marshal serializes a record as a logdriver.LogEntry message.
func Marshal(rec models.LogRecord) ([]byte, error) {
	var b []byte
	if rec.Source != "" {
		b = protowire.AppendTag(b, fieldSource, protowire.BytesType)
		b = protowire.AppendString(b, rec.Source)
	}
	if rec.TimeNano != 0 {
		b = protowire.AppendTag(b, fieldTimeNano, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(rec.TimeNano))
	}
	if len(rec.Line) > 0 {
		b = protowire.AppendTag(b, fieldLine, protowire.BytesType)
		b = protowire.AppendBytes(b, rec.Line)
	}
	if rec.Partial {
		b = protowire.AppendTag(b, fieldPartial, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if rec.PartialMetadata != nil {
		b = protowire.AppendTag(b, fieldPartialMetadata, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalMetadata(rec.PartialMetadata))
	}
	return b, nil
}

func marshalMetadata(m *models.PartialMetadata) []byte {
	var b []byte
	if m.Last {
		b = protowire.AppendTag(b, fieldMetaLast, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if m.ID != "" {
		b = protowire.AppendTag(b, fieldMetaID, protowire.BytesType)
		b = protowire.AppendString(b, m.ID)
	}
	if m.Ordinal != 0 {
		b = protowire.AppendTag(b, fieldMetaOrdinal, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(m.Ordinal)))
	}
	return b
}

// Unmarshal decodes a logdriver.LogEntry message. Unknown fields are skipped.
// Line is never nil, so an empty line round-trips as an empty slice.
func Unmarshal(b []byte) (models.LogRecord, error) {
	rec := models.LogRecord{Line: []byte{}}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldSource && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			rec.Source = v
			return n, nil
		case num == fieldTimeNano && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			rec.TimeNano = int64(v)
			return n, nil
		case num == fieldLine && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				rec.Line = append([]byte{}, v...)
			}
			return n, nil
		case num == fieldPartial && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			rec.Partial = protowire.DecodeBool(v)
			return n, nil
		case num == fieldPartialMetadata && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			meta, err := unmarshalMetadata(v)
			if err != nil {
				return 0, err
			}
			rec.PartialMetadata = meta
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return models.LogRecord{}, srvErrors.NewFramingError("unmarshal", err)
	}
	return rec, nil
}

func unmarshalMetadata(b []byte) (*models.PartialMetadata, error) {
	meta := &models.PartialMetadata{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldMetaLast && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			meta.Last = protowire.DecodeBool(v)
			return n, nil
		case num == fieldMetaID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			meta.ID = v
			return n, nil
		case num == fieldMetaOrdinal && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			meta.Ordinal = int32(v)
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("partial_log_metadata: %w", err)
	}
	return meta, nil
}

type fieldFn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walk(b []byte, fn fieldFn) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		if m > len(b) {
			return errors.New("field overruns message")
		}
		b = b[m:]
	}
	return nil
}
