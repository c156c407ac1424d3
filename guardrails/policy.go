package guardrails

// Direction 检查方向
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Outcome 违规的处理方式
type Outcome string

const (
	// OutcomeBlock 拦截输入
	OutcomeBlock Outcome = "block"
	// OutcomeEducate 不拦截，改为教育引导式回复
	OutcomeEducate Outcome = "educate"
	// OutcomeScrub 脱敏后继续
	OutcomeScrub Outcome = "scrub"
	// OutcomeFallback 替换为安全回复
	OutcomeFallback Outcome = "fallback"
	// OutcomeRecord 仅记录
	OutcomeRecord Outcome = "record"
)

// PolicyKey 策略表键
type PolicyKey struct {
	Direction Direction
	Category  Category
	// Blocking 区分拦截级别 PII（SSN、信用卡）与普通 PII
	Blocking bool
}

// Policy 方向 × 类别 -> 处理方式
//
// 输入侧：校验失败与毒性直接拦截，受限内容只做教育引导，PII 脱敏后继续。
// 输出侧：毒性、禁止内容与拦截级别 PII 替换为安全回复，其他 PII 脱敏，
// 相关性与质量问题仅记录。
type Policy map[PolicyKey]Outcome

// DefaultPolicy 默认的非对称拦截策略
var DefaultPolicy = Policy{
	{Inbound, CategoryValidation, false}: OutcomeBlock,
	{Inbound, CategoryToxicity, false}:   OutcomeBlock,
	{Inbound, CategoryRestricted, false}: OutcomeEducate,
	{Inbound, CategoryPII, false}:        OutcomeScrub,
	{Inbound, CategoryPII, true}:         OutcomeScrub,
	{Inbound, CategoryInternal, false}:   OutcomeBlock,

	{Outbound, CategoryToxicity, false}:   OutcomeFallback,
	{Outbound, CategoryPII, false}:        OutcomeScrub,
	{Outbound, CategoryPII, true}:         OutcomeFallback,
	{Outbound, CategoryProhibited, false}: OutcomeFallback,
	{Outbound, CategoryAlignment, false}:  OutcomeRecord,
	{Outbound, CategoryQuality, false}:    OutcomeRecord,
	{Outbound, CategoryInternal, false}:   OutcomeFallback,
}

// Outcome 查询处理方式，未列出的组合按 OutcomeRecord 处理
func (p Policy) Outcome(direction Direction, category Category, blocking bool) Outcome {
	if o, ok := p[PolicyKey{direction, category, blocking}]; ok {
		return o
	}
	return OutcomeRecord
}

// Severity 将处理方式映射为违规严重级别
func (p Policy) Severity(direction Direction, category Category, blocking bool) Severity {
	switch p.Outcome(direction, category, blocking) {
	case OutcomeBlock, OutcomeFallback:
		return SeverityBlock
	case OutcomeScrub, OutcomeEducate:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}
