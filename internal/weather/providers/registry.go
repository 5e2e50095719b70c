package providers

import (
	"fmt"
	"net/http"
)

// NewSource builds the source registered under name. Open-Meteo ignores apiKey.
func NewSource(name string, client *http.Client, apiKey string) (Source, error) {
	switch name {
	case "tomorrow":
		return NewTomorrowSource(client, apiKey), nil
	case "openweather":
		return NewOpenWeatherSource(client, apiKey), nil
	case "weatherapi":
		return NewWeatherAPISource(client, apiKey), nil
	case "openmeteo":
		return NewOpenMeteoSource(client), nil
	default:
		return nil, fmt.Errorf("unknown weather source %q", name)
	}
}
