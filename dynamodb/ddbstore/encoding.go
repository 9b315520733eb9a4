package ddbstore

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/acksell/ddbupdate/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Badger key layout: [table][0x00][kind][partition key][0x00][kind][sort key]
// Key bytes are escaped so the separator never occurs inside a component.
// The store only does point lookups, so keys need to be unique, not ordered.

const keySeparator byte = 0x00

func encodeBadgerKey(tableName string, pk table.PrimaryKey) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(tableName)
	buf.WriteByte(keySeparator)

	if err := writeKeyComponent(&buf, pk.Definition.PartitionKey, pk.Values.PartitionKey); err != nil {
		return nil, fmt.Errorf("encode partition key: %w", err)
	}
	if pk.Definition.SortKey.Name != "" {
		buf.WriteByte(keySeparator)
		if err := writeKeyComponent(&buf, pk.Definition.SortKey, pk.Values.SortKey); err != nil {
			return nil, fmt.Errorf("encode sort key: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func writeKeyComponent(buf *bytes.Buffer, def table.KeyDef, value any) error {
	buf.WriteString(string(def.Kind))
	switch def.Kind {
	case table.KeyKindS:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string for S key %q, got %T", def.Name, value)
		}
		buf.Write(escapeBytes([]byte(s)))
	case table.KeyKindN:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected number string for N key %q, got %T", def.Name, value)
		}
		n, err := parseNumber(s)
		if err != nil {
			return fmt.Errorf("key %q: %w", def.Name, err)
		}
		// 1, 1.0 and 10E-1 address the same item.
		buf.WriteString(formatNumber(n))
	case table.KeyKindB:
		b, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("expected binary for B key %q, got %T", def.Name, value)
		}
		buf.Write(escapeBytes(b))
	default:
		return fmt.Errorf("unsupported key kind %q", def.Kind)
	}
	return nil
}

// escapeBytes escapes null bytes (0x00) in the input to preserve separator integrity.
// Uses 0x01 0x01 for literal 0x00, and 0x01 0x02 for literal 0x01.
func escapeBytes(b []byte) []byte {
	var buf bytes.Buffer
	for _, c := range b {
		switch c {
		case 0x00:
			buf.Write([]byte{0x01, 0x01})
		case 0x01:
			buf.Write([]byte{0x01, 0x02})
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

// serializeItem encodes an item for storage as a badger value.
func serializeItem(item map[string]types.AttributeValue) ([]byte, error) {
	serializable := make(map[string]serializableAV, len(item))
	for k, v := range item {
		sav, err := toSerializable(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		serializable[k] = sav
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(serializable); err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return buf.Bytes(), nil
}

func deserializeItem(data []byte) (map[string]types.AttributeValue, error) {
	var serializable map[string]serializableAV
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&serializable); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}

	item := make(map[string]types.AttributeValue, len(serializable))
	for k, v := range serializable {
		av, err := fromSerializable(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		item[k] = av
	}
	return item, nil
}

// serializableAV is a gob-encodable representation of an AttributeValue.
type serializableAV struct {
	Type  string
	Value any
}

func init() {
	gob.Register(map[string]serializableAV{})
	gob.Register([]serializableAV{})
	gob.Register([]string{})
	gob.Register([][]byte{})
}

func toSerializable(av types.AttributeValue) (serializableAV, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return serializableAV{Type: "S", Value: v.Value}, nil
	case *types.AttributeValueMemberN:
		return serializableAV{Type: "N", Value: v.Value}, nil
	case *types.AttributeValueMemberB:
		return serializableAV{Type: "B", Value: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return serializableAV{Type: "BOOL", Value: v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return serializableAV{Type: "NULL", Value: v.Value}, nil
	case *types.AttributeValueMemberSS:
		return serializableAV{Type: "SS", Value: v.Value}, nil
	case *types.AttributeValueMemberNS:
		return serializableAV{Type: "NS", Value: v.Value}, nil
	case *types.AttributeValueMemberBS:
		return serializableAV{Type: "BS", Value: v.Value}, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]serializableAV, len(v.Value))
		for k, val := range v.Value {
			sav, err := toSerializable(val)
			if err != nil {
				return serializableAV{}, err
			}
			m[k] = sav
		}
		return serializableAV{Type: "M", Value: m}, nil
	case *types.AttributeValueMemberL:
		l := make([]serializableAV, len(v.Value))
		for i, val := range v.Value {
			sav, err := toSerializable(val)
			if err != nil {
				return serializableAV{}, err
			}
			l[i] = sav
		}
		return serializableAV{Type: "L", Value: l}, nil
	default:
		return serializableAV{}, fmt.Errorf("unsupported attribute value type %T", av)
	}
}

func fromSerializable(sav serializableAV) (types.AttributeValue, error) {
	var (
		av types.AttributeValue
		ok = true
	)
	switch sav.Type {
	case "S":
		var s string
		s, ok = sav.Value.(string)
		av = &types.AttributeValueMemberS{Value: s}
	case "N":
		var s string
		s, ok = sav.Value.(string)
		av = &types.AttributeValueMemberN{Value: s}
	case "B":
		var b []byte
		b, ok = sav.Value.([]byte)
		av = &types.AttributeValueMemberB{Value: b}
	case "BOOL":
		var b bool
		b, ok = sav.Value.(bool)
		av = &types.AttributeValueMemberBOOL{Value: b}
	case "NULL":
		var b bool
		b, ok = sav.Value.(bool)
		av = &types.AttributeValueMemberNULL{Value: b}
	case "SS":
		var ss []string
		ss, ok = sav.Value.([]string)
		av = &types.AttributeValueMemberSS{Value: ss}
	case "NS":
		var ns []string
		ns, ok = sav.Value.([]string)
		av = &types.AttributeValueMemberNS{Value: ns}
	case "BS":
		var bs [][]byte
		bs, ok = sav.Value.([][]byte)
		av = &types.AttributeValueMemberBS{Value: bs}
	case "M":
		raw, isMap := sav.Value.(map[string]serializableAV)
		if !isMap {
			ok = false
			break
		}
		m := make(map[string]types.AttributeValue, len(raw))
		for k, v := range raw {
			val, err := fromSerializable(v)
			if err != nil {
				return nil, err
			}
			m[k] = val
		}
		av = &types.AttributeValueMemberM{Value: m}
	case "L":
		raw, isList := sav.Value.([]serializableAV)
		if !isList {
			ok = false
			break
		}
		l := make([]types.AttributeValue, len(raw))
		for i, v := range raw {
			val, err := fromSerializable(v)
			if err != nil {
				return nil, err
			}
			l[i] = val
		}
		av = &types.AttributeValueMemberL{Value: l}
	default:
		return nil, fmt.Errorf("unsupported serialized type %q", sav.Type)
	}
	if !ok {
		return nil, fmt.Errorf("serialized %s holds %T", sav.Type, sav.Value)
	}
	return av, nil
}
