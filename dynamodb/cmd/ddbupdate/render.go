package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func renderCmd(app *app) *cobra.Command {
	var (
		file   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "print the UpdateExpression, names and values of an update file",
		Example: `  ddbupdate render -f update.yaml
  ddbupdate render -f update.yaml -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := readUpdateFile(file)
			if err != nil {
				return err
			}
			u, err := f.toUpdate()
			if err != nil {
				return err
			}
			req, err := u.Build()
			if err != nil {
				return err
			}
			app.log.Debug("rendered update")
			return writeOutput(cmd.OutOrStdout(), output, renderedRequest{
				TableName:                 aws.ToString(req.TableName),
				Key:                       dynamoJSONMap(req.Key),
				UpdateExpression:          aws.ToString(req.UpdateExpression),
				ConditionExpression:       aws.ToString(req.ConditionExpression),
				ExpressionAttributeNames:  req.Names,
				ExpressionAttributeValues: dynamoJSONMap(req.Values),
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "update file (yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// renderedRequest mirrors the UpdateItem request fields, with values in DynamoDB JSON.
type renderedRequest struct {
	TableName                 string            `json:"TableName" yaml:"TableName"`
	Key                       map[string]any    `json:"Key" yaml:"Key"`
	UpdateExpression          string            `json:"UpdateExpression" yaml:"UpdateExpression"`
	ConditionExpression       string            `json:"ConditionExpression,omitempty" yaml:"ConditionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string `json:"ExpressionAttributeNames,omitempty" yaml:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]any    `json:"ExpressionAttributeValues,omitempty" yaml:"ExpressionAttributeValues,omitempty"`
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q, want json or yaml", format)
	}
}

func dynamoJSONMap(m map[string]types.AttributeValue) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return lo.MapValues(m, func(av types.AttributeValue, _ string) any {
		return dynamoJSON(av)
	})
}

// dynamoJSON converts av to the {"S": "..."} shape the AWS CLI uses.
func dynamoJSON(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return map[string]any{"S": v.Value}
	case *types.AttributeValueMemberN:
		return map[string]any{"N": v.Value}
	case *types.AttributeValueMemberB:
		return map[string]any{"B": base64.StdEncoding.EncodeToString(v.Value)}
	case *types.AttributeValueMemberBOOL:
		return map[string]any{"BOOL": v.Value}
	case *types.AttributeValueMemberNULL:
		return map[string]any{"NULL": v.Value}
	case *types.AttributeValueMemberSS:
		return map[string]any{"SS": v.Value}
	case *types.AttributeValueMemberNS:
		return map[string]any{"NS": v.Value}
	case *types.AttributeValueMemberBS:
		return map[string]any{"BS": lo.Map(v.Value, func(b []byte, _ int) string {
			return base64.StdEncoding.EncodeToString(b)
		})}
	case *types.AttributeValueMemberL:
		return map[string]any{"L": lo.Map(v.Value, func(e types.AttributeValue, _ int) any {
			return dynamoJSON(e)
		})}
	case *types.AttributeValueMemberM:
		m := dynamoJSONMap(v.Value)
		if m == nil {
			m = map[string]any{}
		}
		return map[string]any{"M": m}
	default:
		return map[string]any{"?": fmt.Sprintf("%T", av)}
	}
}
