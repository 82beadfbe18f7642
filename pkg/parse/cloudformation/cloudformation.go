// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package cloudformation parses CloudFormation/SAM templates (YAML or
// JSON), iterating Resources and mapping each Type to the discovery
// kind it represents, plus Events blocks that reference a queue or
// table by name.
package cloudformation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forgelabs/forge/pkg/discovery"
)

// Parser implements parse.Parser for CloudFormation/SAM templates.
// Templates are identified by content (AWSTemplateFormatVersion, an
// AWS::Serverless transform, or, when there is no Transform, a
// Resources map with at least one AWS:: type), not by extension alone,
// since .yaml/.yml and .json are shared with ordinary config files.
type Parser struct{}

func New() *Parser { return &Parser{} }

func (p *Parser) Name() string { return "cloudformation" }

func (p *Parser) SupportedExtensions() []string {
	return []string{".yaml", ".yml", ".json"}
}

type template struct {
	AWSTemplateFormatVersion string                 `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Transform                any                    `json:"Transform" yaml:"Transform"`
	Resources                map[string]resource    `json:"Resources" yaml:"Resources"`
}

type resource struct {
	Type       string         `json:"Type" yaml:"Type"`
	Properties map[string]any `json:"Properties" yaml:"Properties"`
}

func (p *Parser) ParseFile(path string, content []byte) ([]discovery.Discovery, error) {
	var tmpl template
	var err error
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		err = json.Unmarshal(content, &tmpl)
	} else {
		err = yaml.Unmarshal(content, &tmpl)
	}
	if err != nil {
		return nil, fmt.Errorf("decode template %s: %w", path, err)
	}

	if !looksLikeCloudFormation(tmpl) {
		return nil, nil
	}

	var out []discovery.Discovery
	known := make(map[string]knownResource)

	// Sort logical IDs for deterministic discovery ordering.
	ids := make([]string, 0, len(tmpl.Resources))
	for id := range tmpl.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		res := tmpl.Resources[id]
		d, name := discoveryFor(path, id, res)
		if d != nil {
			out = append(out, *d)
			if name != "" {
				known[name] = resourceOf(d)
			}
		}
	}

	for _, id := range ids {
		res := tmpl.Resources[id]
		out = append(out, eventDiscoveries(path, id, res, known)...)
	}

	return out, nil
}

func looksLikeCloudFormation(t template) bool {
	if t.AWSTemplateFormatVersion != "" {
		return true
	}
	if t.Transform == nil {
		return len(t.Resources) > 0 && hasAWSResourceType(t)
	}
	switch v := t.Transform.(type) {
	case string:
		return strings.Contains(v, "AWS::Serverless")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.Contains(s, "AWS::Serverless") {
				return true
			}
		}
	}
	return false
}

func hasAWSResourceType(t template) bool {
	for _, r := range t.Resources {
		if strings.HasPrefix(r.Type, "AWS::") {
			return true
		}
	}
	return false
}

func discoveryFor(path, logicalID string, r resource) (*discovery.Discovery, string) {
	switch r.Type {
	case "AWS::DynamoDB::Table", "AWS::Serverless::SimpleTable":
		name := stringProp(r.Properties, "TableName")
		if name == "" {
			name = logicalID
		}
		return &discovery.Discovery{
			Kind: discovery.KindDatabaseAccess,
			SourceFile: path,
			SourceLine: 1,
			DatabaseAccess: &discovery.DatabaseAccess{
				DBType:          "dynamodb",
				TableName:       name,
				Operation:       discovery.OpUnknown,
				DetectionMethod: "cloudformation:" + r.Type,
			},
		}, name

	case "AWS::SQS::Queue":
		name := stringProp(r.Properties, "QueueName")
		if name == "" {
			name = logicalID
		}
		return &discovery.Discovery{
			Kind:       discovery.KindQueueOperation,
			SourceFile: path,
			SourceLine: 1,
			QueueOperation: &discovery.QueueOperation{
				QueueType: "sqs",
				QueueName: name,
				Operation: discovery.OpUnknown,
			},
		}, name

	case "AWS::SNS::Topic":
		name := stringProp(r.Properties, "TopicName")
		if name == "" {
			name = logicalID
		}
		return &discovery.Discovery{
			Kind:       discovery.KindQueueOperation,
			SourceFile: path,
			SourceLine: 1,
			QueueOperation: &discovery.QueueOperation{
				QueueType: "sns",
				QueueName: name,
				Operation: discovery.OpUnknown,
			},
		}, name

	case "AWS::Serverless::Function", "AWS::Lambda::Function":
		name := stringProp(r.Properties, "FunctionName")
		if name == "" {
			name = logicalID
		}
		if r.Type == "AWS::Serverless::Function" {
			return &discovery.Discovery{
				Kind:       discovery.KindService,
				SourceFile: path,
				SourceLine: 1,
				Service: &discovery.Service{
					Name:     name,
					Language: "unknown",
				},
			}, name
		}
		return &discovery.Discovery{
			Kind:       discovery.KindCloudResourceUsage,
			SourceFile: path,
			SourceLine: 1,
			CloudResourceUsage: &discovery.CloudResourceUsage{
				ResourceType: r.Type,
				ResourceName: name,
			},
		}, name
	}
	return nil, ""
}

// knownResource is what eventDiscoveries needs to re-emit an Events
// reference as a discovery against the real resource: which kind it is,
// and the db_type/queue_type that makes its canonical name agree with
// the one discoveryFor already gave it.
type knownResource struct {
	kind      discovery.Kind
	dbType    string
	queueType string
}

// resourceOf extracts the knownResource a discoveryFor result
// represents, so eventDiscoveries can target the exact same
// canonical-name pair that the standalone resource was discovered with.
func resourceOf(d *discovery.Discovery) knownResource {
	switch d.Kind {
	case discovery.KindDatabaseAccess:
		return knownResource{kind: discovery.KindDatabaseAccess, dbType: d.DatabaseAccess.DBType}
	case discovery.KindQueueOperation:
		return knownResource{kind: discovery.KindQueueOperation, queueType: d.QueueOperation.QueueType}
	}
	return knownResource{}
}

// eventDiscoveries looks at a Serverless::Function's Events block and,
// for every event source naming a resource already discovered in the
// same template, emits a DatabaseAccess(Read) or QueueOperation
// (Subscribe) discovery against that resource's real canonical name —
// not a synthetic event_source placeholder — so the graph builder
// creates a genuine READS/SUBSCRIBES edge from the function's Service
// node and the coupling analyzer can see the function sharing that
// resource with anything else that touches it.
func eventDiscoveries(path, logicalID string, r resource, known map[string]knownResource) []discovery.Discovery {
	if r.Type != "AWS::Serverless::Function" {
		return nil
	}
	events, _ := r.Properties["Events"].(map[string]any)
	var out []discovery.Discovery
	for _, raw := range events {
		event, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		props, _ := event["Properties"].(map[string]any)
		for _, key := range []string{"Queue", "Topic", "Table", "Stream"} {
			name := stringProp(props, key)
			if name == "" {
				continue
			}
			res, ok := known[name]
			if !ok {
				continue
			}
			switch res.kind {
			case discovery.KindDatabaseAccess:
				out = append(out, discovery.Discovery{
					Kind:       discovery.KindDatabaseAccess,
					SourceFile: path,
					SourceLine: 1,
					DatabaseAccess: &discovery.DatabaseAccess{
						DBType:          res.dbType,
						TableName:       name,
						Operation:       discovery.OpRead,
						DetectionMethod: "cloudformation:events:" + logicalID,
					},
				})
			case discovery.KindQueueOperation:
				out = append(out, discovery.Discovery{
					Kind:       discovery.KindQueueOperation,
					SourceFile: path,
					SourceLine: 1,
					QueueOperation: &discovery.QueueOperation{
						QueueType: res.queueType,
						QueueName: name,
						Operation: discovery.OpSubscribe,
					},
				})
			}
		}
	}
	return out
}

func stringProp(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
