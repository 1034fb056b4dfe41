package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"medocs-backend/internal/bootstrap"
	"medocs-backend/internal/shared/config"
	"medocs-backend/internal/shared/server/respond"
	"medocs-backend/internal/shared/telemetry"
)

// proxy builds the router on the first invocation and reuses it for the
// lifetime of the execution environment.
type proxy struct {
	build func() (*gin.Engine, error)

	once    sync.Once
	err     error
	adapter *ginadapter.GinLambdaV2
}

func (p *proxy) handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	p.once.Do(func() {
		engine, err := p.build()
		if err != nil {
			p.err = err
			return
		}
		p.adapter = ginadapter.NewV2(engine)
	})
	if p.err != nil {
		telemetry.Error("lambda_http.bootstrap_failed", map[string]any{"err": p.err})
		return unavailable(), nil
	}
	return p.adapter.ProxyWithContext(ctx, req)
}

func unavailable() events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(respond.ErrorResponse{Error: respond.ErrorBody{
		Code:    "unavailable",
		Message: "service failed to start",
	}})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func buildRouter() (*gin.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	app, err := bootstrap.Build(cfg)
	if err != nil {
		return nil, err
	}
	return app.Router, nil
}

func main() {
	p := &proxy{build: buildRouter}
	lambda.Start(p.handle)
}
