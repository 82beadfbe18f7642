// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

package cloudformation

import (
	"testing"

	"github.com/forgelabs/forge/pkg/discovery"
)

const sampleTemplate = `
AWSTemplateFormatVersion: '2010-09-09'
Transform: AWS::Serverless-2016-10-31
Resources:
  OrdersTable:
    Type: AWS::DynamoDB::Table
    Properties:
      TableName: orders

  OrdersQueue:
    Type: AWS::SQS::Queue
    Properties:
      QueueName: orders-queue

  WorkerFunction:
    Type: AWS::Serverless::Function
    Properties:
      FunctionName: order-worker
      Events:
        QueueEvent:
          Type: SQS
          Properties:
            Queue: orders-queue
`

func TestParseFile_SAMTemplate(t *testing.T) {
	p := New()
	got, err := p.ParseFile("template.yaml", []byte(sampleTemplate))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	var kinds []discovery.Kind
	for _, d := range got {
		kinds = append(kinds, d.Kind)
	}

	var sawTable, sawQueue, sawService, sawEventSubscribe bool
	for _, d := range got {
		switch d.Kind {
		case discovery.KindDatabaseAccess:
			sawTable = d.DatabaseAccess.TableName == "orders"
		case discovery.KindQueueOperation:
			if d.QueueOperation.QueueName == "orders-queue" {
				sawQueue = true
				if d.QueueOperation.Operation == discovery.OpSubscribe && d.QueueOperation.QueueType == "sqs" {
					sawEventSubscribe = true
				}
			}
		case discovery.KindService:
			sawService = d.Service.Name == "order-worker"
		case discovery.KindCloudResourceUsage:
			t.Errorf("Events cross-reference should resolve to the real queue, not a synthetic CloudResourceUsage: %+v", d)
		}
	}
	if !sawTable || !sawQueue || !sawService {
		t.Fatalf("missing expected discoveries, got kinds=%v full=%+v", kinds, got)
	}
	if !sawEventSubscribe {
		t.Errorf("expected the Events reference to orders-queue to emit a QueueOperation(Subscribe) against sqs:orders-queue, got %+v", got)
	}
}

func TestParseFile_NotACloudFormationTemplate(t *testing.T) {
	p := New()
	got, err := p.ParseFile("config.yaml", []byte("name: my-app\nversion: 1\n"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no discoveries for a non-CFN yaml file, got %+v", got)
	}
}
