// Package vm provides a VictoriaMetrics/Prometheus metric source.
package vm

import (
	"fmt"
	"math"
	"strconv"
)

// QueryResponse represents the API response from /api/v1/query endpoint.
// This structure follows the Prometheus HTTP API specification.
type QueryResponse struct {
	Status    string    `json:"status"`    // 响应状态：success 或 error
	Data      QueryData `json:"data"`      // 查询数据
	ErrorType string    `json:"errorType"` // 错误类型（仅在 status=error 时存在）
	Error     string    `json:"error"`     // 错误信息（仅在 status=error 时存在）
	Warnings  []string  `json:"warnings"`  // 警告信息列表
}

// IsSuccess returns true if the query was successful.
func (r *QueryResponse) IsSuccess() bool {
	return r.Status == "success"
}

// QueryData contains the result data from a query.
type QueryData struct {
	ResultType string   `json:"resultType"` // 结果类型：vector, matrix, scalar, string
	Result     []Sample `json:"result"`     // 结果样本列表
}

// Sample represents a single series of an instant vector.
type Sample struct {
	Metric map[string]string `json:"metric"` // 指标标签
	Value  SampleValue       `json:"value"`  // [timestamp, value]
}

// SampleValue is the [unix_timestamp_float, "value_string"] pair of the
// Prometheus API.
type SampleValue [2]interface{}

// Value returns the sample value as float64.
func (v SampleValue) Value() (float64, error) {
	switch val := v[1].(type) {
	case string:
		// Prometheus API 返回的值是字符串格式
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse value %q: %w", val, err)
		}
		return f, nil
	case float64:
		return val, nil
	default:
		return 0, fmt.Errorf("unexpected value type: %T", v[1])
	}
}

// QueryResult is one parsed series of an instant vector.
type QueryResult struct {
	Value  float64           // 指标值
	Labels map[string]string // 所有标签
}

// ParseQueryResults converts a vector QueryResponse into results.
// NaN, Inf and unparsable samples are dropped.
func ParseQueryResults(resp *QueryResponse) ([]QueryResult, error) {
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("query failed: %s - %s", resp.ErrorType, resp.Error)
	}

	if resp.Data.ResultType != "vector" {
		return nil, fmt.Errorf("unexpected result type: %s (expected vector)", resp.Data.ResultType)
	}

	results := make([]QueryResult, 0, len(resp.Data.Result))
	for _, sample := range resp.Data.Result {
		value, err := sample.Value.Value()
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}

		results = append(results, QueryResult{
			Value:  value,
			Labels: sample.Metric,
		})
	}

	return results, nil
}
