package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	PlotCreated = "plot_created"
	NoPlot      = "no_plot"
)

// AnalysisReply is the structured answer the model gives to a data-analysis question.
type AnalysisReply struct {
	Explanation string `json:"explanation"`
	Code        string `json:"code"`
	Plot        string `json:"plot"`
}

var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

// ParseAnalysisReply decodes raw as JSON, falling back to the outermost {...} block.
// ok is false when neither yields an object; the reply then carries raw as its explanation.
func ParseAnalysisReply(raw string) (reply AnalysisReply, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), &reply); err == nil {
		return normalize(reply), true
	}
	if block := jsonBlock.FindString(trimmed); block != "" {
		reply = AnalysisReply{}
		if err := json.Unmarshal([]byte(block), &reply); err == nil {
			return normalize(reply), true
		}
	}
	return AnalysisReply{Explanation: trimmed}, false
}

func normalize(reply AnalysisReply) AnalysisReply {
	reply.Code = strings.TrimSpace(reply.Code)
	if reply.Plot != PlotCreated {
		reply.Plot = NoPlot
	}
	return reply
}
