// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package discovery defines the typed facts that parsers extract from
// source trees. A Discovery is a single tagged fact about one line of
// one file: a service boundary, an import, an outbound call, a database
// or queue touch, or a cloud resource reference. Parsers never build
// graphs; they only emit Discoveries, which the graph builder (package
// graph) fuses across repositories.
package discovery

// Kind identifies which variant of Discovery a value carries.
type Kind string

const (
	KindService            Kind = "service"
	KindImport             Kind = "import"
	KindAPICall            Kind = "api_call"
	KindDatabaseAccess     Kind = "database_access"
	KindQueueOperation     Kind = "queue_operation"
	KindCloudResourceUsage Kind = "cloud_resource_usage"
)

// Operation is the access mode of a DatabaseAccess or QueueOperation
// discovery. It forms a join-semilattice: Unknown ⊑ {Read,Write} ⊑
// ReadWrite (database operations); Unknown ⊑ {Publish,Subscribe}
// (queue operations, which do not merge into a combined state).
type Operation string

const (
	OpUnknown   Operation = "unknown"
	OpRead      Operation = "read"
	OpWrite     Operation = "write"
	OpReadWrite Operation = "read_write"
	OpPublish   Operation = "publish"
	OpSubscribe Operation = "subscribe"
)

// Discovery is a single fact extracted by a parser from one source file
// at a known line. Exactly one of the Kind-specific fields is
// meaningful for a given Kind; the rest are left at their zero value.
// Keeping Discovery as a flat struct (rather than an interface
// hierarchy) keeps it trivially serializable and comparable, which the
// incremental state manager relies on when replaying cached
// discoveries verbatim.
type Discovery struct {
	Kind Kind

	// SourceFile is the repo-relative path that produced this
	// discovery. SourceLine is 1-based.
	SourceFile string
	SourceLine int

	Service            *Service
	Import             *Import
	APICall            *APICall
	DatabaseAccess     *DatabaseAccess
	QueueOperation     *QueueOperation
	CloudResourceUsage *CloudResourceUsage
}

// Service describes a service boundary discovered from a manifest or
// deployment descriptor (package.json, pyproject.toml, a Lambda
// function resource, ...).
type Service struct {
	Name       string
	Language   string
	Framework  string // optional; empty when not detected
	EntryPoint string

	// DeploymentMetadata carries framework-specific hints that the
	// graph builder may use for URL→Service resolution (advertised
	// hostnames, API Gateway/route prefixes, ...). Keys are free-form;
	// well-known ones are documented next to their producer.
	DeploymentMetadata map[string]string
}

// Import is a module/package import statement. Imports never create
// graph edges directly; they are retained as builder input for
// intra-repo framework and service-attribution inference (spec.md
// §4.3).
type Import struct {
	Module        string
	IsRelative    bool
	ImportedItems []string
}

// APICall is an outbound HTTP(-shaped) call. Target is either a literal
// URL or a symbolic host:path the parser could partially resolve.
// DetectionMethod names the AST pattern that matched (e.g. "fetch",
// "axios.get", "requests.post", "http.request").
type APICall struct {
	Target          string
	Method          string // optional; empty when not statically known
	DetectionMethod string
}

// DatabaseAccess is a read/write touch of a database table or
// collection.
type DatabaseAccess struct {
	DBType          string // e.g. "dynamodb", "postgres"
	TableName       string // optional; absent when the parser could not extract one
	Operation       Operation
	DetectionMethod string
}

// QueueOperation is a publish/subscribe touch of a message queue or
// topic.
type QueueOperation struct {
	QueueType string // e.g. "sqs", "sns"
	QueueName string // optional
	Operation Operation
}

// CloudResourceUsage is a reference to a cloud resource that is neither
// a database nor a queue (S3 bucket, Lambda function, ...).
type CloudResourceUsage struct {
	ResourceType string
	ResourceName string // optional
}

// HasTableName reports whether a table/collection name was extracted.
func (d DatabaseAccess) HasTableName() bool { return d.TableName != "" }

// HasQueueName reports whether a queue/topic name was extracted.
func (q QueueOperation) HasQueueName() bool { return q.QueueName != "" }

// HasResourceName reports whether a resource name was extracted.
func (c CloudResourceUsage) HasResourceName() bool { return c.ResourceName != "" }

// JoinOperation computes the join (least upper bound) of two database
// access operations in the lattice Unknown ⊑ {Read,Write} ⊑ ReadWrite.
// Unknown is the bottom element and is absorbed by anything else.
func JoinOperation(a, b Operation) Operation {
	if a == "" {
		a = OpUnknown
	}
	if b == "" {
		b = OpUnknown
	}
	if a == b {
		return a
	}
	if a == OpUnknown {
		return b
	}
	if b == OpUnknown {
		return a
	}
	if a == OpReadWrite || b == OpReadWrite {
		return OpReadWrite
	}
	// One Read, one Write (in either order).
	if (a == OpRead && b == OpWrite) || (a == OpWrite && b == OpRead) {
		return OpReadWrite
	}
	return OpReadWrite
}
