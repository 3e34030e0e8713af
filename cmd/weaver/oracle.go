package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"

	"github.com/theimaginaryfoundation/thread-weaver/logging"
	"github.com/theimaginaryfoundation/thread-weaver/weave"
	"github.com/theimaginaryfoundation/thread-weaver/weave/fileutils"
	"github.com/theimaginaryfoundation/thread-weaver/weave/provider"
)

// llmOracle answers ambiguous merge questions with a schema-constrained
// model call instead of a human at the terminal.
type llmOracle struct {
	client *provider.Client
	model  string
}

func newLLMOracle(apiKey, model string, requestsPerMinute int) llmOracle {
	return llmOracle{
		client: provider.New(apiKey, requestsPerMinute),
		model:  model,
	}
}

type verdictRequest struct {
	ExistingTail  []messageForVerdict `json:"existing_tail"`
	CandidateHead []messageForVerdict `json:"candidate_head"`
}

type messageForVerdict struct {
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text,omitempty"`
}

type mergeVerdict struct {
	SameConversation bool   `json:"same_conversation"`
	Reason           string `json:"reason"`
}

var verdictSchema = provider.GenerateSchema[mergeVerdict]()

func (o llmOracle) SameConversation(ctx context.Context, existingTail, candidateHead []weave.Message) (bool, error) {
	payload, err := json.Marshal(buildVerdictRequest(existingTail, candidateHead))
	if err != nil {
		return false, fmt.Errorf("llmOracle: marshal request: %w", err)
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "MergeVerdict",
			Schema:      verdictSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Merge verdict JSON"),
			Type:        "json_schema",
		},
	}

	input := []responses.ResponseInputItemUnionParam{
		responses.ResponseInputItemParamOfMessage(string(payload), responses.EasyInputMessageRoleUser),
	}
	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(300),
		Instructions:    openai.String(mergeVerdictPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := o.client.Respond(ctx, params)
	if err != nil {
		return false, fmt.Errorf("llmOracle: %w", err)
	}

	var out mergeVerdict
	if err := fileutils.DecodeModelJSON(resp.OutputText(), &out); err != nil {
		return false, fmt.Errorf("llmOracle: decode verdict: %w", err)
	}
	logging.Debug("oracle verdict", "same", out.SameConversation, "reason", out.Reason)
	return out.SameConversation, nil
}

const maxVerdictTextLen = 400

func buildVerdictRequest(existingTail, candidateHead []weave.Message) verdictRequest {
	return verdictRequest{
		ExistingTail:  messagesForVerdict(existingTail),
		CandidateHead: messagesForVerdict(candidateHead),
	}
}

func messagesForVerdict(msgs []weave.Message) []messageForVerdict {
	out := make([]messageForVerdict, 0, len(msgs))
	for _, m := range msgs {
		text := m.Text
		if len(text) > maxVerdictTextLen {
			text = text[:maxVerdictTextLen] + "…"
		}
		out = append(out, messageForVerdict{
			Sender:    m.Sender,
			Timestamp: m.Time.Raw(),
			Text:      text,
		})
	}
	return out
}
