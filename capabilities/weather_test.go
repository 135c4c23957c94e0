package capabilities

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nevermined-io/weather-mcp-demo/gateway"
	"github.com/nevermined-io/weather-mcp-demo/internal/jsonrpc"
	"github.com/nevermined-io/weather-mcp-demo/mcp"
	"github.com/nevermined-io/weather-mcp-demo/paywall"
	"github.com/nevermined-io/weather-mcp-demo/weather"
)

func readResultFor(t *testing.T, report weather.Report) *mcp.ReadResourceResult {
	t.Helper()
	b, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{{
			URI:      "weather://today/" + report.City,
			MimeType: "application/json",
			Text:     string(b),
		}},
	}
}

func TestRainSurchargePolicy(t *testing.T) {
	policy := rainSurchargePolicy()

	dry := paywall.PricingContext{Result: readResultFor(t, weather.Report{City: "Madrid"})}
	amount, err := policy.ResolveCredits(dry)
	if err != nil || amount != 1 {
		t.Fatalf("dry day priced %d/%v, want 1", amount, err)
	}

	wet := paywall.PricingContext{Result: readResultFor(t, weather.Report{City: "Bergen", PrecipitationMm: 7.5})}
	amount, err = policy.ResolveCredits(wet)
	if err != nil || amount != 2 {
		t.Fatalf("rainy day priced %d/%v, want 2", amount, err)
	}

	// Pure: the same context prices identically every time.
	again, err := policy.ResolveCredits(wet)
	if err != nil || again != amount {
		t.Fatalf("repeat resolution %d/%v, want %d", again, err, amount)
	}

	// Unrecognized results fall back to the base price rather than failing.
	amount, err = policy.ResolveCredits(paywall.PricingContext{Result: "not a read result"})
	if err != nil || amount != 1 {
		t.Fatalf("fallback priced %d/%v, want 1", amount, err)
	}
}

func TestMapWeatherError(t *testing.T) {
	var domErr *gateway.DomainError

	err := mapWeatherError("Nowhereistan", fmt.Errorf("%w: Nowhereistan", weather.ErrCityNotFound))
	if !errors.As(err, &domErr) || domErr.Code != jsonrpc.ErrorCodeTargetNotFound {
		t.Fatalf("city miss mapped to %v", err)
	}
	data, ok := domErr.Data.(map[string]string)
	if !ok || data["city"] != "Nowhereistan" {
		t.Fatalf("error data %+v", domErr.Data)
	}

	err = mapWeatherError("Madrid", fmt.Errorf("%w: status 502", weather.ErrUpstream))
	if !errors.As(err, &domErr) || domErr.Code != jsonrpc.ErrorCodeUpstreamFailure {
		t.Fatalf("upstream failure mapped to %v", err)
	}

	plain := errors.New("unrelated")
	if got := mapWeatherError("Madrid", plain); got != plain {
		t.Fatalf("unrelated error rewritten to %v", got)
	}
}

func TestSummarizeReport(t *testing.T) {
	got := summarizeReport(&weather.Report{
		City:            "Madrid",
		Country:         "Spain",
		WeatherText:     "Slight rain",
		TminC:           18.2,
		TmaxC:           31.4,
		PrecipitationMm: 3.2,
	})
	want := "Today in Madrid, Spain: Slight rain, 18.2°C to 31.4°C, 3.2 mm precipitation."
	if got != want {
		t.Fatalf("summary %q, want %q", got, want)
	}
}

func TestRegisterWeather(t *testing.T) {
	reg := gateway.NewRegistry()
	if err := RegisterWeather(reg, weather.NewClient(), Config{}); err != nil {
		t.Fatalf("RegisterWeather: %v", err)
	}

	tools := reg.Tools()
	if len(tools) != 1 || tools[0].Name != WeatherToolName {
		t.Fatalf("tools %+v", tools)
	}
	schema := tools[0].InputSchema
	if schema.Type != "object" {
		t.Fatalf("input schema %+v", schema)
	}
	if _, ok := schema.Properties["city"]; !ok {
		t.Fatalf("city missing from input schema %+v", schema.Properties)
	}

	templates := reg.ResourceTemplates()
	if len(templates) != 1 || templates[0].URITemplate != WeatherResourceTemplate {
		t.Fatalf("resource templates %+v", templates)
	}

	prompts := reg.Prompts()
	if len(prompts) != 1 || prompts[0].Name != WeatherPromptName {
		t.Fatalf("prompts %+v", prompts)
	}

	// Registration is startup-only; a second pass is a programming error.
	if err := RegisterWeather(reg, weather.NewClient(), Config{}); err == nil {
		t.Fatal("double registration accepted")
	}
}
