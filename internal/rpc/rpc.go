// Package rpc is the streaming façade exposed to transport layers: it
// extracts caller identity from request metadata, mints or accepts a
// conversation id, drives the orchestrator, and assembles wire-shaped
// responses. The transport itself (gRPC framing, gRPC-Web, reflection,
// CORS) is deliberately out of scope and left to the binary that wires
// this package to a real server.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"goa.design/clue/log"

	"github.com/bennekrouf/semantic-api0/internal/apierr"
	"github.com/bennekrouf/semantic-api0/internal/intent"
	"github.com/bennekrouf/semantic-api0/internal/matching"
	"github.com/bennekrouf/semantic-api0/internal/orchestrator"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// responseChannelCapacity bounds the producer/consumer channel backing
// one AnalyzeSentence call.
const responseChannelCapacity = 10

// AnalyzeRequest is the wire-shaped request for the streaming analyze
// call.
type AnalyzeRequest struct {
	Sentence       string
	ConversationID string
}

// MissingParameter is one entry of an AnalyzeResponse's missing lists.
type MissingParameter struct {
	Name        string
	Description string
}

// UsageInfo mirrors orchestrator.UsageInfo on the wire.
type UsageInfo struct {
	InputTokens  uint32
	OutputTokens uint32
	TotalTokens  uint32
	Model        string
	Estimated    bool
}

// AnalyzeResponse is the single frame emitted per successful
// AnalyzeSentence call.
type AnalyzeResponse struct {
	EndpointID    string
	EndpointName  string
	Description   string
	Verb          string
	Base          string
	Path          string
	EssentialPath string
	APIGroupID    string
	APIGroupName  string

	Parameters []matching.ParameterMatch
	JSONOutput string

	MatchingStatus       string
	TotalRequired        int
	MappedRequired       int
	TotalOptional        int
	MappedOptional       int
	CompletionPercentage int
	MissingRequired      []MissingParameter
	MissingOptional      []MissingParameter

	UserPrompt     string
	Usage          UsageInfo
	Intent         string
	ConversationID string
}

// AnalyzeSentenceStream is what the façade writes response frames to.
// Transport binaries implement it over their stream type (gRPC
// ServerStream, an HTTP chunked writer, a test buffer, ...).
type AnalyzeSentenceStream interface {
	Send(*AnalyzeResponse) error
}

// SendMessageRequest is the unary send-message request.
type SendMessageRequest struct {
	Message        string
	ConversationID string
}

// SendMessageResult is the unary send-message response.
type SendMessageResult struct {
	Response       string
	Success        bool
	ConversationID string
}

// AnalyzeService is the transport-agnostic façade over the orchestrator.
type AnalyzeService struct {
	Orchestrator *orchestrator.Orchestrator
}

// New builds an AnalyzeService backed by o.
func New(o *orchestrator.Orchestrator) *AnalyzeService {
	return &AnalyzeService{Orchestrator: o}
}

// AnalyzeSentence validates caller metadata, resolves a conversation id,
// runs the orchestrator, and writes exactly one response frame into
// stream on success.
func (s *AnalyzeService) AnalyzeSentence(ctx context.Context, req *AnalyzeRequest, stream AnalyzeSentenceStream) error {
	email, clientID, err := callerIdentity(ctx)
	if err != nil {
		return err
	}
	log.Info(ctx, log.KV{K: "msg", V: "analyze_sentence"}, log.KV{K: "client_id", V: clientID})

	conversationID := req.ConversationID
	if strings.TrimSpace(conversationID) == "" {
		conversationID = uuid.NewString()
	}

	responses := make(chan *AnalyzeResponse, responseChannelCapacity)
	errs := make(chan error, 1)

	go func() {
		defer close(responses)
		result, err := s.Orchestrator.Analyze(ctx, req.Sentence, email, conversationID)
		if err != nil {
			errs <- err
			return
		}
		responses <- toAnalyzeResponse(result)
		errs <- nil
	}()

	for resp := range responses {
		if err := stream.Send(resp); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "analyze_sentence: stream send failed, abandoning call"})
			return nil
		}
	}
	if err := <-errs; err != nil {
		return mapError(err)
	}
	return nil
}

// SendMessage is the unary conversational entry point.
func (s *AnalyzeService) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResult, error) {
	email, _, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, status.Error(codes.InvalidArgument, "message must not be empty")
	}

	conversationID := req.ConversationID
	if strings.TrimSpace(conversationID) == "" {
		conversationID = uuid.NewString()
	}

	result, err := s.Orchestrator.Analyze(ctx, req.Message, email, conversationID)
	if err != nil {
		return nil, mapError(err)
	}

	text, _ := result.RawJSON["response"].(string)
	return &SendMessageResult{Response: text, Success: true, ConversationID: conversationID}, nil
}

func callerIdentity(ctx context.Context) (email, clientID string, err error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", "", status.Error(codes.InvalidArgument, "email metadata is required")
	}
	email = firstValue(md, "email")
	if email == "" || !emailPattern.MatchString(email) {
		return "", "", status.Error(codes.InvalidArgument, "email metadata is missing or not syntactically valid")
	}
	clientID = firstValue(md, "client-id")
	return email, clientID, nil
}

func firstValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// mapError maps the core's apierr kinds to RPC status codes per the
// façade's error contract: InvalidArgument -> InvalidArgument, NotFound ->
// NotFound, FailedPrecondition -> FailedPrecondition, everything else ->
// Internal.
func mapError(err error) error {
	switch {
	case apierr.Is(err, apierr.InvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case apierr.Is(err, apierr.NotFound):
		return status.Error(codes.NotFound, err.Error())
	case apierr.Is(err, apierr.FailedPrecondition):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
	}
}

func toAnalyzeResponse(result orchestrator.EnhancedAnalysisResult) *AnalyzeResponse {
	info := result.MatchingInfo
	return &AnalyzeResponse{
		EndpointID:           result.EndpointID,
		EndpointName:         result.EndpointName,
		Description:          result.Description,
		Verb:                 result.Verb,
		Base:                 result.Base,
		Path:                 result.Path,
		EssentialPath:        result.EssentialPath,
		APIGroupID:           result.APIGroupID,
		APIGroupName:         result.APIGroupName,
		Parameters:           result.Parameters,
		JSONOutput:           jsonOutputString(result.RawJSON),
		MatchingStatus:       info.Status.String(),
		TotalRequired:        info.TotalRequired,
		MappedRequired:       info.MappedRequired,
		TotalOptional:        info.TotalOptional,
		MappedOptional:       info.MappedOptional,
		CompletionPercentage: info.CompletionPercentage,
		MissingRequired:      missingParameters(info.MissingRequired),
		MissingOptional:      missingParameters(info.MissingOptional),
		UserPrompt:           result.UserPrompt,
		Usage: UsageInfo{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
			TotalTokens:  result.Usage.TotalTokens,
			Model:        result.Usage.Model,
			Estimated:    result.Usage.Estimated,
		},
		Intent:         intentString(result.Intent),
		ConversationID: result.ConversationID,
	}
}

func missingParameters(fields []matching.MissingField) []MissingParameter {
	out := make([]MissingParameter, len(fields))
	for i, f := range fields {
		out[i] = MissingParameter{Name: f.Name, Description: f.Description}
	}
	return out
}

func intentString(i intent.Intent) string {
	return i.String()
}

func jsonOutputString(raw map[string]any) string {
	if raw == nil {
		return "{}"
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
