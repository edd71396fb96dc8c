package queue

import (
	"encoding/json"

	"github.com/riverqueue/river"
)

const MaxDeliveryAttempts = 1

// Message kinds, one per pipeline stage. The request kinds are produced
// here and consumed by the external engines; the response kinds arrive from
// those engines and are worked by this process.
const (
	KindIngestion           = "ingestion_message"
	KindRuleRequest         = "rule_request"
	KindRuleResponse        = "rule_response"
	KindDataQualityRequest  = "dq_request"
	KindDataQualityResponse = "dq_response"
	KindRemediationResponse = "remediation_response"
)

func insertOpts(queue string) river.InsertOpts {
	return river.InsertOpts{
		Queue:       queue,
		MaxAttempts: MaxDeliveryAttempts,
	}
}

// IngestionArgs carries a raw ingestion message. The payload stays opaque
// until the worker parses it; producers are not trusted to send objects.
type IngestionArgs struct {
	Payload json.RawMessage `json:"payload"`
}

func (IngestionArgs) Kind() string { return KindIngestion }

type RuleRequestArgs struct {
	Payload json.RawMessage `json:"payload"`
}

func (RuleRequestArgs) Kind() string { return KindRuleRequest }

type RuleResponseArgs struct {
	Payload json.RawMessage `json:"payload"`
}

func (RuleResponseArgs) Kind() string { return KindRuleResponse }

type DataQualityRequestArgs struct {
	Payload json.RawMessage `json:"payload"`
}

func (DataQualityRequestArgs) Kind() string { return KindDataQualityRequest }

type DataQualityResponseArgs struct {
	Payload json.RawMessage `json:"payload"`
}

func (DataQualityResponseArgs) Kind() string { return KindDataQualityResponse }

type RemediationResponseArgs struct {
	Payload json.RawMessage `json:"payload"`
}

func (RemediationResponseArgs) Kind() string { return KindRemediationResponse }
