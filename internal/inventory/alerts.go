package inventory

// IsLow reports whether r is at or below its reorder threshold.
func IsLow(r Record) bool {
	return r.Quantity <= r.ReorderThreshold
}

// Evaluate returns an Alert for every low-stock record, in snapshot order.
func Evaluate(s *Snapshot) []Alert {
	if s == nil {
		return nil
	}
	var alerts []Alert
	for _, r := range s.Records {
		if IsLow(r) {
			alerts = append(alerts, Alert{Record: r, Quantity: r.Quantity, Threshold: r.ReorderThreshold})
		}
	}
	return alerts
}
