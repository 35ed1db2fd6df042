package meteo

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const sampleCompactJSON = `{
	"type": "Feature",
	"geometry": {"type": "Point", "coordinates": [18.0686, 59.3293, 10]},
	"properties": {
		"meta": {"updated_at": "2026-02-10T08:00:00Z", "units": {"air_temperature": "celsius"}},
		"timeseries": [
			{
				"time": "2026-02-10T09:00:00Z",
				"data": {
					"instant": {"details": {"air_temperature": -3.2, "cloud_area_fraction": 45.0}},
					"next_1_hours": {"summary": {"symbol_code": "partlycloudy_day"}}
				}
			}
		]
	}
}`

func TestGetCompact(t *testing.T) {
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleCompactJSON))
	}))
	defer srv.Close()

	client := NewClient("home-mpc-test/1.0 test@example.com")
	client.SetBaseURL(srv.URL)

	forecast, err := client.GetCompact(QueryParams{
		Location: Location{Latitude: 59.3293, Longitude: 18.0686},
	})
	if err != nil {
		t.Fatalf("GetCompact: %v", err)
	}

	if gotUA != "home-mpc-test/1.0 test@example.com" {
		t.Errorf("user agent = %q", gotUA)
	}
	if gotPath != "/compact?lat=59.3293&lon=18.0686" {
		t.Errorf("request = %q", gotPath)
	}

	if forecast.Properties == nil || len(forecast.Properties.Timeseries) != 1 {
		t.Fatal("timeseries not decoded")
	}
	step := &forecast.Properties.Timeseries[0]
	if got := step.GetTemperature(); got == nil || *got != -3.2 {
		t.Errorf("temperature = %v, want -3.2", got)
	}
	if got := step.GetSymbolCode(); got == nil || *got != PartlyCloudyDay {
		t.Errorf("symbol = %v, want partlycloudy_day", got)
	}
}

func TestGetCompactAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("home-mpc-test/1.0")
	client.SetBaseURL(srv.URL)

	_, err := client.GetCompact(QueryParams{Location: Location{Latitude: 1, Longitude: 2}})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
}

func TestBuildURLIncludesAltitude(t *testing.T) {
	client := NewClient("x")
	url, err := client.buildURL("compact", QueryParams{
		Location: Location{Latitude: 59.5, Longitude: 18.25, Altitude: IntPtr(25)},
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	want := client.baseURL + "/compact?altitude=25&lat=59.5&lon=18.25"
	if url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
}

func TestValidateLocation(t *testing.T) {
	if err := ValidateLocation(Location{Latitude: 59.3, Longitude: 18.1}); err != nil {
		t.Errorf("valid location rejected: %v", err)
	}
	if err := ValidateLocation(Location{Latitude: 95, Longitude: 0}); err == nil {
		t.Error("latitude 95 accepted")
	}
	if err := ValidateLocation(Location{Latitude: 0, Longitude: -190}); err == nil {
		t.Error("longitude -190 accepted")
	}
}
