package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wyfcoding/riskassessment/internal/risk/domain"
)

const creditCheckPath = "/api/credit-check/{customerId}"

// creditCheckResponse 央行征信接口响应体
type creditCheckResponse struct {
	CustomerID       string `json:"customerId"`
	CreditScore      int    `json:"creditScore"`
	OutstandingLoans int    `json:"outstandingLoans"`
	PaymentHistory   string `json:"paymentHistory"`
	Status           string `json:"status"`
	Details          string `json:"details"`
}

// CreditBureauClient 基于 resty 的央行征信 HTTP 客户端，重试与熔断由调用方的策略负责
type CreditBureauClient struct {
	http *resty.Client
}

// NewCreditBureauClient 创建征信客户端
func NewCreditBureauClient(baseURL string, timeout time.Duration) *CreditBureauClient {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &CreditBureauClient{http: http}
}

// FetchCreditReport 查询客户征信报告。非 2xx 返回 *domain.RemoteStatusError
func (c *CreditBureauClient) FetchCreditReport(ctx context.Context, customerID string) (*domain.CreditReport, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("customerId", customerID).
		Get(creditCheckPath)
	if err != nil {
		return nil, fmt.Errorf("credit bureau request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &domain.RemoteStatusError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 256)}
	}

	var body creditCheckResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("failed to decode credit bureau response: %w", err)
	}

	report := &domain.CreditReport{
		CustomerID:  body.CustomerID,
		CreditScore: body.CreditScore,
		Status:      body.Status,
		Details:     body.Details,
	}
	if report.CustomerID == "" {
		report.CustomerID = customerID
	}
	if report.Status == "" {
		report.Status = domain.CreditStatusActive
	}
	if report.Details == "" {
		report.Details = fmt.Sprintf("outstandingLoans=%d; %s", body.OutstandingLoans, body.PaymentHistory)
	}
	return report, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
