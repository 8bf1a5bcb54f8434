package api

import (
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorClassification(t *testing.T) {
	Convey("Given the statuses this API answers with", t, func() {
		cases := []struct {
			status   int
			kind     string
			severity string
		}{
			{http.StatusBadRequest, "client_error", "medium"},
			{http.StatusNotFound, "not_found", "medium"},
			{http.StatusRequestEntityTooLarge, "client_error", "medium"},
			{http.StatusTooManyRequests, "client_error", "medium"},
			{http.StatusInternalServerError, "server_error", "high"},
			{http.StatusServiceUnavailable, "store_unavailable", "high"},
			{http.StatusFound, "unknown", "low"},
		}

		for _, tc := range cases {
			So(getErrorType(tc.status), ShouldEqual, tc.kind)
			So(getErrorSeverity(tc.status), ShouldEqual, tc.severity)
		}
	})
}
