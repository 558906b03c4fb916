package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAnalysisReply(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want AnalysisReply
		ok   bool
	}{
		{
			name: "plain json",
			raw:  `{"explanation":"mean is 3","code":"result = df.a.mean()","plot":"no_plot"}`,
			want: AnalysisReply{Explanation: "mean is 3", Code: "result = df.a.mean()", Plot: NoPlot},
			ok:   true,
		},
		{
			name: "json inside a fenced block",
			raw:  "Sure!\n```json\n{\"explanation\":\"chart\",\"code\":\"result = 1\",\"plot\":\"plot_created\"}\n```",
			want: AnalysisReply{Explanation: "chart", Code: "result = 1", Plot: PlotCreated},
			ok:   true,
		},
		{
			name: "unknown plot value",
			raw:  `{"explanation":"x","code":"","plot":"maybe"}`,
			want: AnalysisReply{Explanation: "x", Plot: NoPlot},
			ok:   true,
		},
		{
			name: "free text",
			raw:  "  I cannot answer that. ",
			want: AnalysisReply{Explanation: "I cannot answer that."},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAnalysisReply(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
