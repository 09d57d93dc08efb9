package cve

import (
	"time"

	"github.com/hakim/scandeck/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func nvd(id string) string {
	return "https://nvd.nist.gov/vuln/detail/" + id
}

func defaultPool() []Record {
	return []Record{
		{
			ID:           "CVE-2024-50623",
			Description:  "A SQL injection vulnerability in web application login forms allows remote attackers to execute arbitrary SQL commands via the username parameter.",
			Severity:     models.SeverityHigh,
			CVSS:         8.1,
			Vector:       "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:N",
			Published:    day("2024-12-15T10:00:00Z"),
			LastModified: day("2024-12-16T14:30:00Z"),
			References:   []string{"https://example.com/security-advisory", nvd("CVE-2024-50623")},
			CPE:          []string{"cpe:2.3:a:example:webapp:*:*:*:*:*:*:*:*"},
			Weaknesses:   []string{"CWE-89"},
		},
		{
			ID:           "CVE-2024-50624",
			Description:  "Cross-site scripting (XSS) vulnerability in search functionality allows attackers to inject malicious scripts.",
			Severity:     models.SeverityMedium,
			CVSS:         6.1,
			Vector:       "CVSS:3.1/AV:N/AC:L/PR:N/UI:R/S:C/C:L/I:L/A:N",
			Published:    day("2024-12-14T15:30:00Z"),
			LastModified: day("2024-12-15T09:45:00Z"),
			References:   []string{"https://example.com/xss-disclosure", nvd("CVE-2024-50624")},
			CPE:          []string{"cpe:2.3:a:example:search:*:*:*:*:*:*:*:*"},
			Weaknesses:   []string{"CWE-79"},
		},
		{
			ID:           "CVE-2024-50625",
			Description:  "Remote code execution vulnerability in file upload functionality due to insufficient input validation.",
			Severity:     models.SeverityCritical,
			CVSS:         9.8,
			Vector:       "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
			Published:    day("2024-12-13T08:15:00Z"),
			LastModified: day("2024-12-14T16:20:00Z"),
			References:   []string{"https://example.com/rce-advisory", nvd("CVE-2024-50625")},
			CPE:          []string{"cpe:2.3:a:example:fileupload:*:*:*:*:*:*:*:*"},
			Weaknesses:   []string{"CWE-434", "CWE-78"},
		},
		{
			ID:           "CVE-2024-50626",
			Description:  "Information disclosure vulnerability in error handling exposes sensitive system information.",
			Severity:     models.SeverityLow,
			CVSS:         3.7,
			Vector:       "CVSS:3.1/AV:N/AC:H/PR:N/UI:N/S:U/C:L/I:N/A:N",
			Published:    day("2024-12-12T12:00:00Z"),
			LastModified: day("2024-12-13T10:30:00Z"),
			References:   []string{"https://example.com/info-disclosure", nvd("CVE-2024-50626")},
			CPE:          []string{"cpe:2.3:a:example:errorhandler:*:*:*:*:*:*:*:*"},
			Weaknesses:   []string{"CWE-200"},
		},
		{
			ID:           "CVE-2024-50627",
			Description:  "Authentication bypass vulnerability allows unauthorized access to admin panel.",
			Severity:     models.SeverityHigh,
			CVSS:         7.5,
			Vector:       "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:N/A:N",
			Published:    day("2024-12-11T14:45:00Z"),
			LastModified: day("2024-12-12T11:15:00Z"),
			References:   []string{"https://example.com/auth-bypass", nvd("CVE-2024-50627")},
			CPE:          []string{"cpe:2.3:a:example:admin:*:*:*:*:*:*:*:*"},
			Weaknesses:   []string{"CWE-287"},
		},
		{
			ID:           "CVE-2024-50628",
			Description:  "Server-side request forgery (SSRF) in webhook functionality allows access to internal services.",
			Severity:     models.SeverityHigh,
			CVSS:         7.7,
			Vector:       "CVSS:3.1/AV:N/AC:L/PR:L/UI:N/S:C/C:H/I:N/A:N",
			Published:    day("2024-12-10T09:30:00Z"),
			LastModified: day("2024-12-11T13:45:00Z"),
			References:   []string{"https://example.com/ssrf-disclosure", nvd("CVE-2024-50628")},
			CPE:          []string{"cpe:2.3:a:example:webhook:*:*:*:*:*:*:*:*"},
			Weaknesses:   []string{"CWE-918"},
		},
	}
}
