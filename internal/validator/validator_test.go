package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
)

func TestValidator_NilResponseIsNavigationFailed(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{HasResponse: false})
	if !result.Blocked || result.Reason != models.BlockReasonNavigationFailed {
		t.Errorf("expected navigation_failed, got %+v", result)
	}
}

func TestValidator_BodyFetchErrorIsContentError(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{HasResponse: true, BodyFetchError: errors.New("boom")})
	if !result.Blocked || result.Reason != models.BlockReasonContentError {
		t.Errorf("expected content_error, got %+v", result)
	}
}

func TestValidator_StatusBlockWithCloudfrontDetection(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{
		HasResponse: true,
		HTTPStatus:  429,
		Headers:     map[string]string{"X-Amz-Cf-Id": "abc"},
		Body:        "some body long enough to not trip content_too_short for this test case indeed",
	})
	if !result.Blocked || result.Reason != models.BlockReasonStatus429 {
		t.Errorf("expected status_429, got %+v", result)
	}
	if result.BlockedBy != "cloudfront" {
		t.Errorf("expected blocked_by=cloudfront, got %q", result.BlockedBy)
	}
}

func TestValidator_StatusBlockWithAkamaiDetection(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{
		HasResponse: true,
		HTTPStatus:  403,
		Headers:     map[string]string{"X-Akamai-Request-Id": "xyz"},
		Body:        "forbidden page body that is plenty long enough to avoid a length trip",
	})
	if result.BlockedBy != "akamai" {
		t.Errorf("expected blocked_by=akamai, got %q", result.BlockedBy)
	}
}

func TestValidator_CloudflareBodyPattern(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{HasResponse: true, HTTPStatus: 200,
		Body: "Checking your browser before accessing the site, please wait a moment."})
	if !result.Blocked || result.Reason != models.BlockReasonCloudflare {
		t.Errorf("expected cloudflare block, got %+v", result)
	}
}

func TestValidator_CaptchaBodyPattern(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{HasResponse: true, HTTPStatus: 200,
		Body: "Please complete the reCAPTCHA to continue browsing this website."})
	if !result.Blocked || result.Reason != models.BlockReasonCaptcha {
		t.Errorf("expected captcha block, got %+v", result)
	}
}

func TestValidator_CustomSuccessOverridesCustomBlock(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{
		HasResponse:           true,
		HTTPStatus:            200,
		Body:                  "access denied but actually logged in successfully with full content here",
		CustomBlockPatterns:   []string{"access denied"},
		CustomSuccessPatterns: []string{"logged in successfully"},
	})
	if result.Blocked {
		t.Errorf("expected success pattern to override custom block, got %+v", result)
	}
}

func TestValidator_CustomBlockWithoutSuccessOverride(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{
		HasResponse:         true,
		HTTPStatus:          200,
		Body:                "access denied: this resource is not available to your account at this time",
		CustomBlockPatterns: []string{"access denied"},
	})
	if !result.Blocked || result.Reason != models.BlockReasonCustomBlock {
		t.Errorf("expected custom_block, got %+v", result)
	}
}

func TestValidator_LoginWallIsReportedNotBlocked(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{HasResponse: true, HTTPStatus: 200,
		Body: "You must be logged in to view this page and all of its content."})
	if result.Blocked {
		t.Errorf("login wall should not be blocking, got %+v", result)
	}
	if result.Reason != models.BlockReasonLoginRequired {
		t.Errorf("expected login_required reason, got %q", result.Reason)
	}
}

func TestValidator_ContentTooShort(t *testing.T) {
	v := New(arbor.NewLogger())
	// 27 opening tags: over the 20-tag expected-short-page exemption.
	result := v.Validate(Input{
		HasResponse:      true,
		HTTPStatus:       200,
		Body:             "<html><body>" + strings.Repeat("<p>hi</p>", 25) + "</body></html>",
		MinContentLength: 1000,
	})
	if !result.Blocked || result.Reason != models.BlockReasonContentTooShort {
		t.Errorf("expected content_too_short, got %+v", result)
	}
}

func TestValidator_ShortJSONIsNotBlocked(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{
		HasResponse:      true,
		HTTPStatus:       200,
		Body:             `{"ok":true}`,
		MinContentLength: 1000,
	})
	if result.Blocked {
		t.Errorf("short JSON body should not be blocked, got %+v", result)
	}
}

func TestValidator_ShortMetaRefreshIsNotBlocked(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{
		HasResponse:      true,
		HTTPStatus:       200,
		Body:             `<html><head><meta http-equiv="refresh" content="0; url=/next"></head></html>`,
		MinContentLength: 1000,
	})
	if result.Blocked {
		t.Errorf("meta-refresh redirect page should not be blocked, got %+v", result)
	}
}

func TestValidator_ShortLowTagCountIsNotBlocked(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{
		HasResponse:      true,
		HTTPStatus:       200,
		Body:             "<div><span>ok</span></div>",
		MinContentLength: 1000,
	})
	if result.Blocked {
		t.Errorf("page with <=20 DOM tags should not be blocked, got %+v", result)
	}
}

func TestValidator_NotBlockedWhenAllChecksPass(t *testing.T) {
	v := New(arbor.NewLogger())
	result := v.Validate(Input{
		HasResponse:      true,
		HTTPStatus:       200,
		Body:             "this is a perfectly normal page body with plenty of legitimate content in it",
		MinContentLength: 10,
	})
	if result.Blocked {
		t.Errorf("expected no block, got %+v", result)
	}
}
