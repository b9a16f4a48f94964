package storage

import (
	"fmt"
	"strings"
)

// ReportObjectPath composes the storage key for a lab report PDF belonging to an order.
func ReportObjectPath(orderID, fileName string) (string, error) {
	id, err := validateSegment("orderID", orderID)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(fileName)
	if name == "" {
		name = "report.pdf"
	}
	validated, err := validateFileName(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("reports/orders/%s/%s", id, validated), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
