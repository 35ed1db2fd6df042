// Package meteo provides a client for the MET Norway Location Forecast API.
//
// The planner uses it for the two weather signals that matter to a home
// energy system: cloud cover (PV forecast) and air temperature (heating
// demand and S-index).
//
// Basic Usage:
//
//	client := meteo.NewClient("YourApp/1.0 (your-email@example.com)")
//
//	forecast, err := client.GetCompact(meteo.QueryParams{
//		Location: meteo.Location{Latitude: 59.3293, Longitude: 18.0686},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	step := forecast.GetWeatherAtTime(time.Now().Add(6 * time.Hour))
//	if cloud := step.GetCloudCoverage(); cloud != nil {
//		fmt.Printf("cloud cover: %.0f%%\n", *cloud)
//	}
//
// For more information about the API, visit: https://api.met.no/weatherapi/locationforecast/2.0/documentation
package meteo
