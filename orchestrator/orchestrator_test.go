package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/safetycore/conversation"
	"github.com/BaSui01/safetycore/guardrails"
	"github.com/BaSui01/safetycore/llm"
	"github.com/BaSui01/safetycore/mood"
	"github.com/BaSui01/safetycore/types"
)

// =============================================================================
// 🧪 测试替身
// =============================================================================

type stubModel struct {
	mu      sync.Mutex
	reply   string
	calls   int
	prompts []string
}

func (m *stubModel) Generate(context.Context, []llm.Message) (string, error) {
	return "", errors.New("not used")
}

func (m *stubModel) Classify(ctx context.Context, prompt string, out any) error {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	reply := m.reply
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return json.Unmarshal([]byte(reply), out)
}

func (m *stubModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *stubModel) SetReply(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = reply
}

type recordingMetrics struct {
	mu           sync.Mutex
	inbound      []string
	outbound     int
	violations   []string
	degradations []string
	moods        []string
	sessions     int
}

func (r *recordingMetrics) RecordInboundDecision(responseType, _ string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbound = append(r.inbound, responseType)
}

func (r *recordingMetrics) RecordOutboundValidation(bool, bool, string, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outbound++
}

func (r *recordingMetrics) RecordViolation(direction, _, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, direction+"/"+kind)
}

func (r *recordingMetrics) RecordDegradation(detector string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degradations = append(r.degradations, detector)
}

func (r *recordingMetrics) RecordMoodAnalysis(source string, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moods = append(r.moods, source)
}

func (r *recordingMetrics) SetActiveSessions(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = n
}

type panicDetector struct{}

func (panicDetector) Name() string { return "panic" }

func (panicDetector) Scores(context.Context, string) (guardrails.ToxicityScore, error) {
	panic("detector exploded")
}

type failingClassifier struct{}

func (failingClassifier) Score(context.Context, string) (map[string]float64, error) {
	return nil, errors.New("moderation endpoint down")
}

const (
	neutralReply = `{"mood":"neutral","confidence":0.6,"emotional_indicators":[],"context_analysis":"ok","sensitivity_level":"low","support_needed":false}`
	happyReply   = `{"mood":"happy","confidence":0.8,"emotional_indicators":["excited"],"context_analysis":"upbeat","sensitivity_level":"low","support_needed":false}`
	sadReply     = `{"mood":"sad","confidence":0.9,"emotional_indicators":["down"],"context_analysis":"low mood","sensitivity_level":"medium","support_needed":false}`
)

type testEnv struct {
	o       *Orchestrator
	model   *stubModel
	metrics *recordingMetrics
}

func newTestEnv(t *testing.T, deps Dependencies) *testEnv {
	t.Helper()
	model := &stubModel{reply: neutralReply}
	rec := &recordingMetrics{}

	if deps.Mood == nil {
		deps.Mood = mood.NewAnalyzer(model, nil, mood.DefaultConfig(), zap.NewNop())
	}
	if deps.Toxicity == nil {
		deps.Toxicity = guardrails.NewToxicityGuard(nil, time.Second, zap.NewNop())
	}
	if deps.PII == nil {
		deps.PII = guardrails.NewPIIGuard(guardrails.DefaultPIIGuardConfig(), nil, zap.NewNop())
	}
	if deps.Output == nil {
		cfg := guardrails.DefaultOutputGuardConfig()
		cfg.Fallback = guardrails.NewFixedFallback(0)
		deps.Output = guardrails.NewOutputGuard(deps.Toxicity, deps.PII, cfg, zap.NewNop())
	}
	deps.Metrics = rec

	o, err := New(deps, DefaultRuntimeConfig(), zap.NewNop())
	require.NoError(t, err)
	return &testEnv{o: o, model: model, metrics: rec}
}

func inbound(text, sessionID string) *InboundRequest {
	return &InboundRequest{Text: &text, UserID: "user-1", SessionID: sessionID}
}

func kinds(violations []guardrails.Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Kind)
	}
	return out
}

// =============================================================================
// 📥 输入流水线
// =============================================================================

func TestProcessInbound_PIIIsScrubbed(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	env.model.SetReply(happyReply)

	d, err := env.o.ProcessInboundMessage(context.Background(), inbound("My email is a@b.com", "s1"))
	require.NoError(t, err)

	assert.NotEmpty(t, d.DecisionID)
	assert.Equal(t, "My email is a@b.com", d.OriginalText)
	assert.Equal(t, "My email is [EMAIL_REDACTED]", d.ProcessedText)
	assert.True(t, d.PIIDetected)
	assert.Equal(t, []guardrails.PIIType{guardrails.PIIEmail}, d.PIITypes)
	assert.False(t, d.BlockingPIIDetected)
	assert.False(t, d.ShouldBlock)
	assert.True(t, d.IsSafe)
	assert.Equal(t, ResponseNormal, d.ResponseType)
	assert.Equal(t, []string{guardrails.KindPIIInput}, kinds(d.Violations))
	assert.Equal(t, guardrails.SeverityWarn, d.Violations[0].Severity)
	assert.Equal(t, guardrails.RiskMedium, d.RiskLevel)
	assert.Equal(t, mood.Happy, d.Mood.Mood)
	assert.Equal(t, FramingDefault, d.Framing)

	// 情绪模型与会话只看到脱敏后的文本
	require.Equal(t, 1, env.model.Calls())
	assert.NotContains(t, env.model.prompts[0], "a@b.com")
	sess, ok := env.o.Sessions().Peek("s1")
	require.True(t, ok)
	assert.Equal(t, "My email is [EMAIL_REDACTED]", sess.RecentContext(1)[0].Content)
	assert.Equal(t, mood.Happy, sess.CurrentMood())
}

func TestProcessInbound_EmptyTextIsBlocked(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	d, err := env.o.ProcessInboundMessage(context.Background(), inbound("", "s1"))
	require.NoError(t, err)

	assert.True(t, d.ShouldBlock)
	assert.False(t, d.IsSafe)
	assert.Equal(t, ResponseBlocked, d.ResponseType)
	assert.Equal(t, BlockReasonInvalidInput, d.BlockReason)
	assert.Contains(t, kinds(d.Violations), guardrails.KindMinLength)
	assert.Contains(t, d.UserMessages, "Message too short (minimum 1 characters)")
	assert.Equal(t, guardrails.RiskMedium, d.RiskLevel)

	assert.Zero(t, env.model.Calls(), "validation failures skip mood analysis")
	assert.Zero(t, env.o.Sessions().Len(), "blocked input never enters the context")
}

func TestProcessInbound_MalformedCalls(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()

	t.Run("absent text", func(t *testing.T) {
		d, err := env.o.ProcessInboundMessage(ctx, &InboundRequest{SessionID: "s1"})
		require.Error(t, err)
		assert.Equal(t, types.ErrInvalidInput, types.GetErrorCode(err))
		require.NotNil(t, d)
		assert.True(t, d.ShouldBlock)
		assert.Equal(t, []string{guardrails.KindMissingText}, kinds(d.Violations))
	})

	t.Run("missing session", func(t *testing.T) {
		d, err := env.o.ProcessInboundMessage(ctx, inbound("hello", "  "))
		require.Error(t, err)
		assert.Equal(t, types.ErrMissingSession, types.GetErrorCode(err))
		assert.True(t, d.ShouldBlock)
		assert.Equal(t, BlockReasonMissingSession, d.BlockReason)
		assert.Equal(t, "hello", d.OriginalText)
	})

	t.Run("nil request", func(t *testing.T) {
		d, err := env.o.ProcessInboundMessage(ctx, nil)
		assert.Equal(t, types.ErrMissingSession, types.GetErrorCode(err))
		require.NotNil(t, d)
		assert.Equal(t, ResponseBlocked, d.ResponseType)
		assert.NotNil(t, d.Violations)
	})

	assert.Zero(t, env.o.Sessions().Len())
}

func TestProcessInbound_ToxicInputIsBlocked(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	d, err := env.o.ProcessInboundMessage(context.Background(), inbound("you are a stupid idiot", "s1"))
	require.NoError(t, err)

	assert.True(t, d.ShouldBlock)
	assert.Equal(t, BlockReasonToxic, d.BlockReason)
	assert.Equal(t, []string{guardrails.KindToxicInput}, kinds(d.Violations))
	require.NotNil(t, d.Toxicity)
	assert.Equal(t, "insult", d.Toxicity.MaxCategory)
	assert.Nil(t, d.Restricted, "checks after toxicity do not run")
	assert.Zero(t, env.model.Calls())
	assert.Equal(t, FramingDefault, d.Framing)
	assert.Empty(t, d.RedirectSuggestions)
}

func TestProcessInbound_RestrictedContentIsEducational(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	d, err := env.o.ProcessInboundMessage(context.Background(), inbound("Why are drugs bad for you?", "s1"))
	require.NoError(t, err)

	assert.False(t, d.ShouldBlock)
	assert.True(t, d.IsSafe)
	assert.Equal(t, ResponseEducational, d.ResponseType)
	require.NotNil(t, d.Education)
	assert.Equal(t, guardrails.EducationDrugs, d.Education.Category)
	assert.NotEmpty(t, d.Education.RedirectTopics)
	assert.Equal(t, []string{guardrails.KindRestricted}, kinds(d.Violations))
	assert.Equal(t, guardrails.SeverityWarn, d.Violations[0].Severity)

	sess, ok := env.o.Sessions().Peek("s1")
	require.True(t, ok)
	assert.Equal(t, 1, sess.Summary().EducationalTopicsCount)
}

func TestProcessInbound_HighRiskRestrictedEducates(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()

	d, err := env.o.ProcessInboundMessage(ctx, inbound("In history class we covered the bomb, weapon and murder trials", "s1"))
	require.NoError(t, err)
	assert.Equal(t, guardrails.RiskHigh, d.Restricted.Risk)
	assert.False(t, d.ShouldBlock, "restricted content never blocks under defaults")
	assert.True(t, d.IsSafe)
	assert.Equal(t, ResponseEducational, d.ResponseType)
	require.NotNil(t, d.Education)
	assert.Equal(t, guardrails.EducationViolence, d.Education.Category)

	d, err = env.o.ProcessInboundMessage(ctx, inbound("OMG THIS IS SO COOL!!!!!", "s1"))
	require.NoError(t, err)
	assert.False(t, d.ShouldBlock)
	assert.NotEqual(t, ResponseBlocked, d.ResponseType)
}

func TestProcessInbound_BlockOnHighRiskGate(t *testing.T) {
	// 毒性改为 fallback：高严重度但不在毒性阶段拦截
	policy := guardrails.Policy{}
	for k, v := range guardrails.DefaultPolicy {
		policy[k] = v
	}
	policy[guardrails.PolicyKey{Direction: guardrails.Inbound, Category: guardrails.CategoryToxicity}] = guardrails.OutcomeFallback

	env := newTestEnv(t, Dependencies{Policy: policy})
	ctx := context.Background()
	text := "you are a stupid idiot, bomb, weapon and murder"

	d, err := env.o.ProcessInboundMessage(ctx, inbound(text, "s1"))
	require.NoError(t, err)
	assert.True(t, d.ShouldBlock)
	assert.Equal(t, BlockReasonHighRisk, d.BlockReason)
	assert.Equal(t, guardrails.RiskHigh, d.RiskLevel)
	assert.Nil(t, d.Education)

	require.NoError(t, env.o.UpdateConfig(map[string]any{KeyBlockOnHighRisk: false}))
	d, err = env.o.ProcessInboundMessage(ctx, inbound(text, "s1"))
	require.NoError(t, err)
	assert.False(t, d.ShouldBlock)
	assert.Equal(t, ResponseEducational, d.ResponseType)
}

func TestProcessInbound_BlockingPIIIsScrubbedNotBlocked(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	d, err := env.o.ProcessInboundMessage(context.Background(), inbound("my ssn is 123-45-6789", "s1"))
	require.NoError(t, err)

	assert.False(t, d.ShouldBlock)
	assert.True(t, d.BlockingPIIDetected)
	assert.Equal(t, "my ssn is [SSN_REDACTED]", d.ProcessedText)
	assert.Equal(t, guardrails.SeverityWarn, d.Violations[0].Severity)
}

func TestProcessInbound_PIIScrubbingDisabledBlocks(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	require.NoError(t, env.o.UpdateConfig(map[string]any{KeyEnablePIIScrubbing: false}))

	d, err := env.o.ProcessInboundMessage(context.Background(), inbound("My email is a@b.com", "s1"))
	require.NoError(t, err)

	assert.True(t, d.ShouldBlock)
	assert.Equal(t, BlockReasonPII, d.BlockReason)
	assert.True(t, d.PIIDetected)
	assert.Zero(t, env.o.Sessions().Len())
}

func TestProcessInbound_DisabledChecks(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	require.NoError(t, env.o.UpdateConfig(map[string]any{
		KeyEnableInputValidation:   false,
		KeyEnableToxicityDetection: false,
	}))

	d, err := env.o.ProcessInboundMessage(context.Background(), inbound("you idiot ☃", "s1"))
	require.NoError(t, err)
	assert.False(t, d.ShouldBlock)
	assert.Nil(t, d.Toxicity)
	assert.Empty(t, d.Violations)
}

func TestProcessInbound_DecliningMoodRedirects(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	env.model.SetReply(sadReply)
	ctx := context.Background()

	req := inbound("I feel really down today", "s1")
	req.Preferences = map[string]string{conversation.PrefLifeGenre: "mystery"}

	var d *GuardrailDecision
	for i := 0; i < 5; i++ {
		var err error
		d, err = env.o.ProcessInboundMessage(ctx, req)
		require.NoError(t, err)
	}

	sess, ok := env.o.Sessions().Peek("s1")
	require.True(t, ok)
	assert.Equal(t, conversation.TrendDeclining, sess.MoodTrend().Trend)
	assert.True(t, sess.ShouldRedirect())
	assert.Equal(t, 5, sess.HistoryLen())

	assert.Equal(t, FramingRedirect, d.Framing)
	require.Len(t, d.RedirectSuggestions, 3)
	assert.Equal(t, "Let's talk about mystery - what's your favorite story?", d.RedirectSuggestions[0])
	assert.Equal(t, ResponseNormal, d.ResponseType)
}

func TestProcessInbound_SupportNeededOverridesRedirect(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	env.model.SetReply(sadReply)
	ctx := context.Background()

	_, err := env.o.ProcessInboundMessage(ctx, inbound("I feel really down today", "s1"))
	require.NoError(t, err)

	// 模型未标记支持需求，本地危机扫描仍会升级
	env.model.SetReply(neutralReply)
	d, err := env.o.ProcessInboundMessage(ctx, inbound("Some days I want to die", "s1"))
	require.NoError(t, err)

	assert.False(t, d.ShouldBlock)
	assert.True(t, d.Mood.SupportNeeded)
	assert.True(t, d.Mood.Crisis)
	assert.Equal(t, FramingSupportive, d.Framing)
}

func TestProcessInbound_BlockedInputKeepsCrisisSignal(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	d, err := env.o.ProcessInboundMessage(context.Background(), inbound("I'm such a worthless loser, I want to die", "s1"))
	require.NoError(t, err)

	assert.True(t, d.ShouldBlock)
	assert.Equal(t, BlockReasonToxic, d.BlockReason)
	assert.True(t, d.Mood.SupportNeeded)
	assert.Equal(t, mood.SensitivityHigh, d.Mood.Sensitivity)
	assert.Equal(t, FramingSupportive, d.Framing)
	assert.Zero(t, env.model.Calls())
}

func TestProcessInbound_BlockedInputOffersSuggestions(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()

	first := inbound("Tell me about the stars tonight", "s1")
	first.Preferences = map[string]string{conversation.PrefMorning: "coffee"}
	_, err := env.o.ProcessInboundMessage(ctx, first)
	require.NoError(t, err)

	d, err := env.o.ProcessInboundMessage(ctx, inbound("you moron", "s1"))
	require.NoError(t, err)
	assert.True(t, d.ShouldBlock)
	assert.Equal(t, FramingRedirect, d.Framing)
	require.NotEmpty(t, d.RedirectSuggestions)
	assert.Equal(t, "Tell me about your coffee routine", d.RedirectSuggestions[0])

	sess, _ := env.o.Sessions().Peek("s1")
	assert.Equal(t, 1, sess.HistoryLen())
}

func TestProcessInbound_TopicsAreTracked(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	_, err := env.o.ProcessInboundMessage(context.Background(), inbound("I love music and my family", "s1"))
	require.NoError(t, err)

	sess, ok := env.o.Sessions().Peek("s1")
	require.True(t, ok)
	assert.Equal(t, 2, sess.Summary().TopicsCount)
}

func TestProcessInbound_PanicFailsClosed(t *testing.T) {
	env := newTestEnv(t, Dependencies{
		Toxicity: guardrails.NewToxicityGuardWithDetectors(panicDetector{}, nil, nil),
	})

	d, err := env.o.ProcessInboundMessage(context.Background(), inbound("hello there", "s1"))
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.True(t, d.ShouldBlock)
	assert.False(t, d.IsSafe)
	assert.Equal(t, BlockReasonInternal, d.BlockReason)
	assert.Equal(t, []string{guardrails.KindPipelineErr}, kinds(d.Violations))
	assert.Empty(t, d.ProcessedText)
	assert.Equal(t, guardrails.RiskMedium, d.RiskLevel)
	assert.Zero(t, env.o.Sessions().Len())
}

func TestProcessInbound_CancelledRequestLeavesContextUntouched(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := env.o.ProcessInboundMessage(ctx, inbound("hello there", "s1"))
	require.NoError(t, err)

	assert.False(t, d.ShouldBlock)
	assert.True(t, d.Mood.IsFallback())
	assert.Zero(t, env.o.Sessions().Len())
}

func TestProcessInbound_DetectorDegradation(t *testing.T) {
	env := newTestEnv(t, Dependencies{
		Toxicity: guardrails.NewToxicityGuard(failingClassifier{}, time.Second, nil),
	})

	d, err := env.o.ProcessInboundMessage(context.Background(), inbound("you idiot", "s1"))
	require.NoError(t, err)

	assert.True(t, d.ShouldBlock, "keyword fallback still catches the insult")
	assert.True(t, d.Toxicity.Degraded)
	assert.Equal(t, []string{"toxicity"}, env.metrics.degradations)
}

func TestProcessInbound_Metrics(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()

	_, _ = env.o.ProcessInboundMessage(ctx, inbound("My email is a@b.com", "s1"))
	_, _ = env.o.ProcessInboundMessage(ctx, inbound("you idiot", "s2"))

	assert.Equal(t, []string{"normal", "blocked"}, env.metrics.inbound)
	assert.Equal(t, []string{"inbound/pii_detected", "inbound/toxic_input"}, env.metrics.violations)
	assert.Equal(t, []string{mood.SourceModel}, env.metrics.moods)
	assert.Equal(t, 1, env.metrics.sessions)
}

func TestProcessInbound_ConcurrentSameSession(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.o.ProcessInboundMessage(context.Background(), inbound(fmt.Sprintf("message number %d", i), "shared"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sess, ok := env.o.Sessions().Peek("shared")
	require.True(t, ok)
	assert.Equal(t, conversation.MaxHistory, sess.HistoryLen())
	assert.Len(t, sess.MoodSamples(), conversation.MaxMoodSamples)
}

func TestProcessInbound_SessionWritesSurviveEviction(t *testing.T) {
	env := newTestEnv(t, Dependencies{
		Sessions: conversation.NewManager(conversation.ManagerConfig{MaxSessions: 1}, zap.NewNop()),
	})
	ctx := context.Background()

	_, err := env.o.ProcessInboundMessage(ctx, inbound("hello there", "a"))
	require.NoError(t, err)
	_, err = env.o.ProcessInboundMessage(ctx, inbound("hi from b", "b"))
	require.NoError(t, err)
	_, ok := env.o.Sessions().Peek("a")
	require.False(t, ok)

	_, err = env.o.ProcessInboundMessage(ctx, inbound("hello again", "a"))
	require.NoError(t, err)
	sess, ok := env.o.Sessions().Peek("a")
	require.True(t, ok)
	assert.Equal(t, 1, sess.HistoryLen())
	assert.Len(t, sess.MoodSamples(), 1)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := env.o.ProcessInboundMessage(ctx, inbound(fmt.Sprintf("turn %d", i), id))
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, env.o.Sessions().Len())
	for _, id := range []string{"a", "b"} {
		if sess, ok := env.o.Sessions().Peek(id); ok {
			assert.Positive(t, sess.HistoryLen())
			assert.NotEmpty(t, sess.MoodSamples())
		}
	}
}

// 任意输入都得到字段完整、自洽的决策
func TestProperty_ProcessInbound_DecisionIsConsistent(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringMatching(`[a-zA-Z0-9 @.,!?'-]{0,80}`).Draw(rt, "text")
		session := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(rt, "session")

		d, err := env.o.ProcessInboundMessage(context.Background(), inbound(text, session))
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if d.DecisionID == "" || d.Violations == nil || d.UserMessages == nil || d.RedirectSuggestions == nil {
			rt.Fatalf("decision not fully populated: %+v", d)
		}
		if d.IsSafe == d.ShouldBlock {
			rt.Fatalf("is_safe and should_block disagree")
		}
		if d.ShouldBlock != (d.ResponseType == ResponseBlocked) {
			rt.Fatalf("response type %s with should_block=%v", d.ResponseType, d.ShouldBlock)
		}
		if d.RiskLevel != guardrails.DeriveRiskLevel(d.Violations) {
			rt.Fatalf("risk level %s does not follow violations", d.RiskLevel)
		}
		if d.PIIDetected && !d.ShouldBlock && d.ProcessedText == d.OriginalText {
			rt.Fatalf("detected PII was not scrubbed: %q", d.ProcessedText)
		}
	})
}

// =============================================================================
// 📤 输出流水线
// =============================================================================

func TestValidateOutbound_SSNUsesFallback(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	result := env.o.ValidateOutboundResponse(context.Background(), "Sure, your number is 123-45-6789.", "what is my number")

	assert.False(t, result.IsSafe)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, guardrails.DefaultFallbackResponses[0], result.CleanedText)
	assert.NotContains(t, result.CleanedText, "123-45-6789")
	assert.Equal(t, 1, env.metrics.outbound)
	assert.Contains(t, env.metrics.violations, "outbound/"+guardrails.KindBlockingPII)
}

func TestValidateOutbound_SafeResponse(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	ai := "Cosmos by Carl Sagan is a wonderful astronomy book for beginners."
	result := env.o.ValidateOutboundResponse(context.Background(), ai, "Can you recommend a good book about astronomy for beginners?")
	assert.True(t, result.IsSafe)
	assert.Equal(t, ai, result.CleanedText)
}
