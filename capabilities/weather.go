// Package capabilities registers the weather capability surface (a tool, a
// resource template, and a prompt) against a gateway registry, wiring each
// to the weather collaborator and a pricing policy.
package capabilities

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nevermined-io/weather-mcp-demo/gateway"
	"github.com/nevermined-io/weather-mcp-demo/internal/jsonrpc"
	"github.com/nevermined-io/weather-mcp-demo/mcp"
	"github.com/nevermined-io/weather-mcp-demo/paywall"
	"github.com/nevermined-io/weather-mcp-demo/weather"
)

// WeatherToolName is the registered name of the weather lookup tool.
const WeatherToolName = "weather.today"

// WeatherResourceTemplate is the URI template of the weather resource.
const WeatherResourceTemplate = "weather://today/{city}"

// WeatherPromptName is the registered name of the weather report prompt.
const WeatherPromptName = "weather-report"

// WeatherArgs is the argument payload of the weather tool.
type WeatherArgs struct {
	City string `json:"city" jsonschema:"minLength=1,description=City name to look up"`
}

// Config tunes the pricing of the weather capabilities. Zero values fall
// back to one credit each.
type Config struct {
	ToolCredits   int64
	PromptCredits int64
}

// RegisterWeather adds the weather tool, resource template, and prompt to
// the registry. It is a startup-only operation.
func RegisterWeather(reg *gateway.Registry, wc *weather.Client, cfg Config) error {
	if cfg.ToolCredits <= 0 {
		cfg.ToolCredits = 1
	}
	if cfg.PromptCredits <= 0 {
		cfg.PromptCredits = 1
	}

	if err := reg.RegisterTool(gateway.ToolRegistration{
		Descriptor: mcp.Tool{
			Name:        WeatherToolName,
			Description: "Today's weather (temperature range, precipitation, conditions) for a city.",
			InputSchema: gateway.ToolInputSchemaFor[WeatherArgs](),
		},
		Policy:  paywall.FixedCredits(cfg.ToolCredits),
		Handler: weatherToolHandler(wc),
	}); err != nil {
		return err
	}

	if err := reg.RegisterResource(gateway.ResourceRegistration{
		Descriptor: mcp.ResourceTemplate{
			URITemplate: WeatherResourceTemplate,
			Name:        "weather-today",
			Description: "Today's weather report for a city as JSON.",
			MimeType:    "application/json",
		},
		Policy:  rainSurchargePolicy(),
		Handler: weatherResourceHandler(wc),
	}); err != nil {
		return err
	}

	return reg.RegisterPrompt(gateway.PromptRegistration{
		Descriptor: mcp.Prompt{
			Name:        WeatherPromptName,
			Description: "Narrate today's weather for a city.",
			Arguments: []mcp.PromptArgument{
				{Name: "city", Description: "City name to report on", Required: true},
			},
		},
		Policy:  paywall.FixedCredits(cfg.PromptCredits),
		Handler: weatherPromptHandler(wc),
	})
}

func weatherToolHandler(wc *weather.Client) gateway.ToolHandler {
	return func(ctx context.Context, reqctx paywall.RequestContext, args json.RawMessage) (*mcp.CallToolResult, error) {
		var a WeatherArgs
		if len(args) > 0 {
			dec := json.NewDecoder(bytes.NewReader(args))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&a); err != nil {
				return nil, gateway.NewDomainError(jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("invalid arguments: %v", err), nil)
			}
		}
		if a.City == "" {
			return nil, gateway.NewDomainError(jsonrpc.ErrorCodeInvalidParams, "city is required", nil)
		}

		report, err := wc.TodayWeather(ctx, a.City)
		if err != nil {
			return nil, mapWeatherError(a.City, err)
		}

		structured, err := json.Marshal(report)
		if err != nil {
			return nil, fmt.Errorf("marshal weather report: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.ContentBlock{
				mcp.NewTextContent(summarizeReport(report)),
				mcp.NewResourceLinkContent(
					"weather://today/"+report.City,
					"weather-today",
					"Full weather report for "+report.City,
				),
			},
			StructuredContent: structured,
		}, nil
	}
}

func weatherResourceHandler(wc *weather.Client) gateway.ResourceHandler {
	return func(ctx context.Context, reqctx paywall.RequestContext, uri string, vars map[string]string) (*mcp.ReadResourceResult, error) {
		city := vars["city"]
		if city == "" {
			return nil, gateway.NewDomainError(jsonrpc.ErrorCodeTargetNotFound, "resource not found: "+uri, map[string]string{"uri": uri})
		}

		report, err := wc.TodayWeather(ctx, city)
		if err != nil {
			return nil, mapWeatherError(city, err)
		}

		b, err := json.Marshal(report)
		if err != nil {
			return nil, fmt.Errorf("marshal weather report: %w", err)
		}

		return &mcp.ReadResourceResult{
			Contents: []mcp.ResourceContents{{
				URI:      uri,
				MimeType: "application/json",
				Text:     string(b),
			}},
		}, nil
	}
}

func weatherPromptHandler(wc *weather.Client) gateway.PromptHandler {
	return func(ctx context.Context, reqctx paywall.RequestContext, args map[string]string) (*mcp.GetPromptResult, error) {
		city := args["city"]
		if city == "" {
			return nil, gateway.NewDomainError(jsonrpc.ErrorCodeInvalidParams, "city is required", nil)
		}

		report, err := wc.TodayWeather(ctx, city)
		if err != nil {
			return nil, mapWeatherError(city, err)
		}

		return &mcp.GetPromptResult{
			Description: "Weather report for " + report.City,
			Messages: []mcp.PromptMessage{
				{
					Role: mcp.RoleUser,
					Content: mcp.NewTextContent(fmt.Sprintf(
						"Write a short, friendly weather report for %s, %s. %s",
						report.City, report.Country, summarizeReport(report),
					)),
				},
			},
		}, nil
	}
}

// rainSurchargePolicy prices a resource read at one credit, plus one when
// the returned report shows precipitation. It is a pure function of the
// handler result.
func rainSurchargePolicy() paywall.CreditPolicy {
	return paywall.DynamicCredits(func(pctx paywall.PricingContext) int64 {
		const base = 1
		res, ok := pctx.Result.(*mcp.ReadResourceResult)
		if !ok || len(res.Contents) == 0 {
			return base
		}
		var report weather.Report
		if err := json.Unmarshal([]byte(res.Contents[0].Text), &report); err != nil {
			return base
		}
		if report.PrecipitationMm > 0 {
			return base + 1
		}
		return base
	})
}

func summarizeReport(r *weather.Report) string {
	return fmt.Sprintf(
		"Today in %s, %s: %s, %.1f°C to %.1f°C, %.1f mm precipitation.",
		r.City, r.Country, r.WeatherText, r.TminC, r.TmaxC, r.PrecipitationMm,
	)
}

func mapWeatherError(city string, err error) error {
	switch {
	case errors.Is(err, weather.ErrCityNotFound):
		return gateway.NewDomainError(jsonrpc.ErrorCodeTargetNotFound, "city not found: "+city, map[string]string{"city": city})
	case errors.Is(err, weather.ErrUpstream):
		return gateway.NewDomainError(jsonrpc.ErrorCodeUpstreamFailure, "weather provider unavailable", nil)
	default:
		return err
	}
}
