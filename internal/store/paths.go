package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/models"
)

// DateLayout is the on-disk trip date format (yyyy-MM-dd)
const DateLayout = "2006-01-02"

// ValidateKey checks that key maps onto exactly one PDF path under the root
func ValidateKey(key models.JobKey) error {
	if err := ValidateTrip(key.TripID, key.TripDate); err != nil {
		return err
	}
	return validateSegment("orderNumber", key.OrderNumber)
}

// ValidateTrip checks the trip part of a key
func ValidateTrip(tripID, tripDate string) error {
	if _, err := time.Parse(DateLayout, tripDate); err != nil {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("tripDate %q must be yyyy-MM-dd", tripDate))
	}
	return validateSegment("tripId", tripID)
}

func validateSegment(field, v string) error {
	switch {
	case strings.TrimSpace(v) == "":
		return apperr.New(apperr.KindValidation, field+" is required")
	case v == "." || v == "..", strings.ContainsAny(v, `/\`), strings.ContainsRune(v, 0):
		return apperr.New(apperr.KindValidation, fmt.Sprintf("%s %q is not a valid name", field, v))
	}
	return nil
}

// pdfPath is {root}/{tripDate}/{tripId}/{orderNumber}.pdf
func pdfPath(root string, key models.JobKey) string {
	return filepath.Join(root, key.TripDate, key.TripID, key.OrderNumber+".pdf")
}
