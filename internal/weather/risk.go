package weather

// Classify derives the road risk of a signal. Checks run from most to least
// severe and the first match wins. All comparisons are strict.
func Classify(s WeatherSignal) RiskLevel {
	switch {
	case s.WindGust > 80 || s.Visibility < 0.5 || isThunderstorm(s.WeatherCode):
		return RiskExtreme
	case s.PrecipitationIntensity > 10 || s.WindSpeed > 60 || s.WindGust > 60 ||
		s.Visibility < 1 || isHail(s.WeatherCode):
		return RiskHigh
	case s.PrecipitationIntensity > 2 || s.WindSpeed > 40 || s.Visibility < 3 ||
		isSnow(s.WeatherCode):
		return RiskModerate
	default:
		return RiskLow
	}
}

// WithRisk returns s with RoadRisk recomputed.
func WithRisk(s WeatherSignal) WeatherSignal {
	s.RoadRisk = Classify(s)
	return s
}

func isThunderstorm(code int) bool {
	return code >= CodeThunderstorm
}

func isHail(code int) bool {
	return code >= CodeIcePellets && code < CodeThunderstorm
}

func isSnow(code int) bool {
	return code >= CodeSnow && code < CodeFreezingDrizzle
}
