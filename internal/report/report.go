// Package report classifies upstream risk responses for the dashboards.
package report

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Risk levels derived from result messages.
const (
	LevelHigh    = "high"
	LevelMedium  = "medium"
	LevelLow     = "low"
	LevelUnknown = "unknown"
)

// Login actions in display order.
const (
	ActionBypassMFA  = "Bypass MFA"
	ActionRequireMFA = "Require MFA"
	ActionReview     = "Review"
	ActionDecline    = "Decline Request"
	ActionNA         = "NA"
)

// Actions lists every login action.
var Actions = []string{ActionBypassMFA, ActionRequireMFA, ActionReview, ActionDecline, ActionNA}

var levelKeywords = []struct {
	keyword string
	level   string
}{
	{"blocked", LevelHigh},
	{"decline", LevelHigh},
	{"bypass", LevelLow},
	{"mfa", LevelMedium},
	{"case", LevelMedium},
	{"review", LevelMedium},
	{"authenticated", LevelLow},
}

// Level maps a result message to a risk level by the first matching keyword.
func Level(resultMessage string) string {
	if resultMessage == "" {
		return LevelUnknown
	}
	msg := strings.ToLower(resultMessage)
	for _, k := range levelKeywords {
		if strings.Contains(msg, k.keyword) {
			return k.level
		}
	}
	return LevelUnknown
}

var decisionMatrix = map[string]map[string]string{
	LevelLow:     {LevelLow: "Continue", LevelMedium: "Continue", LevelHigh: "Require MFA"},
	LevelMedium:  {LevelLow: "Continue", LevelMedium: "Require MFA", LevelHigh: "Require MFA"},
	LevelHigh:    {LevelLow: "Require MFA", LevelMedium: "Require MFA", LevelHigh: "Block"},
	LevelUnknown: {LevelLow: "Continue", LevelMedium: "Require MFA", LevelHigh: "Block"},
}

// FinalDecision combines the AI and rule engine levels.
func FinalDecision(aiRisk, ruleRisk string) string {
	if d, ok := decisionMatrix[strings.ToLower(aiRisk)][strings.ToLower(ruleRisk)]; ok {
		return d
	}
	return "Unknown"
}

// ModelResult is the part of a model verdict the score needs.
type ModelResult struct {
	RiskProbabilities any `json:"risk_probabilities"`
}

// AIScore averages the non-zero risk probabilities of both models, formatted
// with two decimals, or "N/A" when neither has one.
func AIScore(isolationForest, xgboost *ModelResult) string {
	var sum float64
	var n int
	for _, m := range []*ModelResult{isolationForest, xgboost} {
		if m == nil {
			continue
		}
		v, ok := parseRisk(m.RiskProbabilities)
		if !ok || v == 0 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return "N/A"
	}
	return strconv.FormatFloat(sum/float64(n), 'f', 2, 64)
}

// parseRisk accepts strings with a leading number, like parseFloat.
func parseRisk(v any) (float64, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return 0, false
	}
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && strings.ContainsRune("+-.0123456789eE", rune(s[end])) {
		end++
	}
	for ; end > 0; end-- {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil && !math.IsNaN(f) {
			return f, true
		}
	}
	return 0, false
}

// Kind selects the classification rules of a batch.
type Kind string

const (
	KindLogin       Kind = "login"
	KindTransaction Kind = "transaction"
)

// Response is the subset of an upstream answer used for classification.
type Response struct {
	ResultMessage string          `json:"resultMessage"`
	ResultData    json.RawMessage `json:"resultData"`
	UserID        string          `json:"userId"`
}

type resultData struct {
	Action          string
	FinalScore      *float64
	RiskScore       *float64
	IsolationForest *ModelResult
	XGBoost         *ModelResult
	AIRiskLevel     string
	RuleRiskLevel   string
}

// data decodes resultData field by field so one oddly typed field does not
// hide the rest. ok is false when resultData is absent or not an object.
func (r Response) data() (resultData, bool) {
	var d resultData
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.ResultData, &fields); err != nil || fields == nil {
		return d, false
	}
	decodeField(fields, "action", &d.Action)
	d.FinalScore = numberField(fields, "final_score")
	d.RiskScore = numberField(fields, "riskScore")
	for _, key := range []string{"Isolation_Forest_prediction", "isolation_forest_prediction"} {
		if d.IsolationForest == nil {
			decodeField(fields, key, &d.IsolationForest)
		}
	}
	decodeField(fields, "xgboost_prediction", &d.XGBoost)

	var decision struct {
		Total struct {
			Level string `json:"ai_risk_level"`
		} `json:"total_ai_risk_score"`
	}
	decodeField(fields, "decision_info", &decision)
	d.AIRiskLevel = decision.Total.Level

	var rule struct {
		Level string `json:"rule_based_risk_level"`
	}
	decodeField(fields, "rule_score", &rule)
	d.RuleRiskLevel = rule.Level
	return d, true
}

func decodeField(fields map[string]json.RawMessage, key string, dest any) {
	if raw, ok := fields[key]; ok {
		_ = json.Unmarshal(raw, dest)
	}
}

// numberField reads a number or numeric string, nil when absent or null.
func numberField(fields map[string]json.RawMessage, key string) *float64 {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return &f
		}
	}
	return nil
}

// Action classifies a login response. A nil response means the request failed.
func Action(r *Response) string {
	if r == nil {
		return ActionDecline
	}
	msg := r.ResultMessage
	switch {
	case strings.Contains(msg, "User authenticate successfully.") ||
		strings.Contains(msg, "Login successfull.User authenticate."):
		return ActionBypassMFA
	case strings.Contains(msg, "resultData is null"):
		return ActionNA
	}
	d, ok := r.data()
	if ok && d.Action != "" {
		return d.Action
	}
	if !ok && msg != "" {
		return ActionDecline
	}
	return ActionNA
}

// TransactionAction classifies a transaction response: the upstream action
// when present, Decline Request when there is no result data at all.
func TransactionAction(r *Response) string {
	if r == nil {
		return ActionDecline
	}
	d, ok := r.data()
	if !ok {
		return ActionDecline
	}
	if d.Action != "" {
		return d.Action
	}
	return ActionNA
}

func actionFor(kind Kind, r *Response) string {
	if kind == KindTransaction {
		return TransactionAction(r)
	}
	return Action(r)
}

// Analysis is the per-response breakdown served by the analyze endpoint.
type Analysis struct {
	Action        string   `json:"action"`
	FinalScore    *float64 `json:"finalScore"`
	AIScore       string   `json:"aiScore"`
	AIRisk        string   `json:"aiRisk"`
	RuleRisk      string   `json:"ruleRisk"`
	FinalDecision string   `json:"finalDecision"`
}

// Analyze classifies a single response. The rule level comes from the rule
// engine block when present, otherwise from the result message.
func Analyze(kind Kind, r Response) Analysis {
	d, _ := r.data()
	ai := d.AIRiskLevel
	if ai == "" {
		ai = LevelUnknown
	}
	rule := d.RuleRiskLevel
	if rule == "" {
		rule = Level(r.ResultMessage)
	}
	score := d.RiskScore
	if score == nil {
		score = d.FinalScore
	}
	return Analysis{
		Action:        actionFor(kind, &r),
		FinalScore:    score,
		AIScore:       AIScore(d.IsolationForest, d.XGBoost),
		AIRisk:        strings.ToLower(ai),
		RuleRisk:      strings.ToLower(rule),
		FinalDecision: FinalDecision(ai, rule),
	}
}

// UserSummary aggregates the responses of one user.
type UserSummary struct {
	UserID       string         `json:"userId"`
	Requests     int            `json:"requests"`
	Actions      map[string]int `json:"actions"`
	AverageScore *float64       `json:"averageScore"`
}

// Summary aggregates a batch.
type Summary struct {
	Total   int            `json:"total"`
	Actions map[string]int `json:"actions"`
	Users   []UserSummary  `json:"users"`
}

// Summarize counts actions overall and per user, sorted by user ID. Actions
// outside Actions still count as requests but get no bucket. Missing
// user IDs group under "Unknown". Login batches average riskScore;
// transaction batches prefer final_score and fall back to riskScore.
func Summarize(kind Kind, responses []*Response) Summary {
	s := Summary{Total: len(responses), Actions: emptyActions()}
	type acc struct {
		summary UserSummary
		sum     float64
		scored  int
	}
	users := map[string]*acc{}

	for _, r := range responses {
		action := actionFor(kind, r)
		_, known := s.Actions[action]
		if known {
			s.Actions[action]++
		}

		userID := "Unknown"
		if r != nil && r.UserID != "" {
			userID = r.UserID
		}
		a, ok := users[userID]
		if !ok {
			a = &acc{summary: UserSummary{UserID: userID, Actions: emptyActions()}}
			users[userID] = a
		}
		a.summary.Requests++
		if known {
			a.summary.Actions[action]++
		}

		if r == nil {
			continue
		}
		d, ok := r.data()
		if !ok {
			continue
		}
		score := d.RiskScore
		if kind == KindTransaction && d.FinalScore != nil {
			score = d.FinalScore
		}
		if score != nil {
			a.sum += *score
			a.scored++
		}
	}

	s.Users = make([]UserSummary, 0, len(users))
	for _, a := range users {
		if a.scored > 0 {
			avg := a.sum / float64(a.scored)
			a.summary.AverageScore = &avg
		}
		s.Users = append(s.Users, a.summary)
	}
	sort.Slice(s.Users, func(i, j int) bool { return s.Users[i].UserID < s.Users[j].UserID })
	return s
}

func emptyActions() map[string]int {
	m := make(map[string]int, len(Actions))
	for _, a := range Actions {
		m[a] = 0
	}
	return m
}
