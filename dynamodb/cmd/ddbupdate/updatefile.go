package main

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/acksell/ddbupdate/dynamodb/ddbsdk"
	"github.com/acksell/ddbupdate/dynamodb/table"
	"github.com/acksell/ddbupdate/dynamodb/updateexpr"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"gopkg.in/yaml.v3"
)

// UpdateFile describes one UpdateItem request.
//
//	table:
//	  name: users
//	  partitionKey: {name: pk, kind: S}
//	  sortKey: {name: sk, kind: S}
//	  timeToLiveKey: ttl
//	key: {partition: "user#1", sort: profile}
//	actions:
//	  - {op: set, attribute: name, value: Jane}
//	  - {op: remove, attribute: tags, index: 0}
//	  - {op: add, attribute: roles, stringSet: [admin]}
type UpdateFile struct {
	Table   TableFile    `yaml:"table"`
	Key     KeyFile      `yaml:"key"`
	Actions []ActionFile `yaml:"actions"`

	RefreshTTL         *time.Time `yaml:"refreshTTL"`
	AllowNonIdempotent bool       `yaml:"allowNonIdempotent"`
	ReturnValues       string     `yaml:"returnValues"`
}

type TableFile struct {
	Name          string     `yaml:"name"`
	PartitionKey  KeyDefFile `yaml:"partitionKey"`
	SortKey       KeyDefFile `yaml:"sortKey"`
	TimeToLiveKey string     `yaml:"timeToLiveKey"`
}

type KeyDefFile struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

type KeyFile struct {
	Partition any `yaml:"partition"`
	Sort      any `yaml:"sort"`
}

// ActionFile is one entry of actions. NumberSet holds the literal text of each
// number so values beyond float64 precision reach DynamoDB unchanged.
type ActionFile struct {
	Op        string   `yaml:"op"`
	Attribute string   `yaml:"attribute"`
	Index     *int     `yaml:"index"`
	Value     any      `yaml:"value"`
	StringSet []string `yaml:"stringSet"`
	NumberSet []string `yaml:"numberSet"`
}

var numberLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

func readUpdateFile(path string) (UpdateFile, error) {
	var f UpdateFile
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

func (f UpdateFile) definition() (table.TableDefinition, error) {
	def := table.TableDefinition{
		Name: f.Table.Name,
		KeyDefinitions: table.PrimaryKeyDefinition{
			PartitionKey: table.KeyDef{Name: f.Table.PartitionKey.Name, Kind: keyKind(f.Table.PartitionKey.Kind)},
		},
		TimeToLiveKey: f.Table.TimeToLiveKey,
	}
	if f.Table.SortKey.Name != "" {
		def.KeyDefinitions.SortKey = table.KeyDef{Name: f.Table.SortKey.Name, Kind: keyKind(f.Table.SortKey.Kind)}
	}
	if def.Name == "" {
		return def, fmt.Errorf("table.name is required")
	}
	if def.KeyDefinitions.PartitionKey.Name == "" {
		return def, fmt.Errorf("table.partitionKey.name is required")
	}
	for _, k := range []table.KeyDef{def.KeyDefinitions.PartitionKey, def.KeyDefinitions.SortKey} {
		if k.Name != "" && !k.Kind.Valid() {
			return def, fmt.Errorf("key %q has invalid kind %q, want S, N or B", k.Name, k.Kind)
		}
	}
	return def, nil
}

// keyKind defaults to S, the common case for single table designs.
func keyKind(kind string) table.KeyKind {
	if kind == "" {
		return table.KeyKindS
	}
	return table.KeyKind(kind)
}

// toUpdate converts the file into an update ready to be built or sent.
func (f UpdateFile) toUpdate() (*ddbsdk.Update, error) {
	def, err := f.definition()
	if err != nil {
		return nil, err
	}
	u := ddbsdk.NewUpdate(def, def.Key(f.Key.Partition, f.Key.Sort))
	for i, af := range f.Actions {
		a, err := af.action()
		if err != nil {
			return nil, fmt.Errorf("actions[%d] (%s %s): %w", i, af.Op, af.Attribute, err)
		}
		u.AddActions(a)
	}
	if f.RefreshTTL != nil {
		u.RefreshTTL(*f.RefreshTTL)
	}
	if f.AllowNonIdempotent {
		u.WithAccidentalIdempotency()
	}
	if f.ReturnValues != "" {
		u.WithReturnValues(types.ReturnValue(f.ReturnValues))
	}
	return u, nil
}

func (af ActionFile) action() (updateexpr.Action, error) {
	if af.Op == "remove" {
		if af.Index != nil {
			return updateexpr.RemoveListElement(af.Attribute, *af.Index)
		}
		return updateexpr.Remove(af.Attribute)
	}
	operand, err := af.operand()
	if err != nil {
		return updateexpr.Action{}, err
	}
	switch af.Op {
	case "set":
		return updateexpr.Set(af.Attribute, operand)
	case "setIfNotExists":
		return updateexpr.SetIfNotExists(af.Attribute, operand)
	case "append":
		return updateexpr.AppendToList(af.Attribute, operand)
	case "add":
		return updateexpr.Add(af.Attribute, operand)
	case "delete":
		return updateexpr.DeleteFromSet(af.Attribute, operand)
	default:
		return updateexpr.Action{}, fmt.Errorf("unknown op %q, want one of set, setIfNotExists, append, remove, add, delete", af.Op)
	}
}

// operand picks the set fields over value, since YAML has no set type.
func (af ActionFile) operand() (any, error) {
	switch {
	case af.StringSet != nil:
		return updateexpr.StringSet(af.StringSet...), nil
	case af.NumberSet != nil:
		for _, n := range af.NumberSet {
			if !numberLiteral.MatchString(n) {
				return nil, fmt.Errorf("numberSet element %q is not a number", n)
			}
		}
		return &types.AttributeValueMemberNS{Value: af.NumberSet}, nil
	default:
		return af.Value, nil
	}
}
