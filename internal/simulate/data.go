package simulate

import (
	"slices"

	"github.com/hakim/scandeck/internal/models"
)

var commonPorts = []models.Port{
	{Number: 21, Service: "ftp"},
	{Number: 22, Service: "ssh", Version: "OpenSSH 8.2p1", Banner: "SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.5"},
	{Number: 23, Service: "telnet"},
	{Number: 25, Service: "smtp"},
	{Number: 53, Service: "dns"},
	{Number: 80, Service: "http", Version: "nginx 1.18.0", Banner: "nginx/1.18.0 (Ubuntu)"},
	{Number: 110, Service: "pop3"},
	{Number: 143, Service: "imap"},
	{Number: 443, Service: "https", Version: "nginx 1.18.0", Banner: "nginx/1.18.0 (Ubuntu)"},
	{Number: 993, Service: "imaps"},
	{Number: 995, Service: "pop3s"},
	{Number: 8080, Service: "http-proxy"},
	{Number: 8443, Service: "https-alt"},
}

// detailedPorts are the services a comprehensive scan fingerprints.
var detailedPorts = []models.Port{
	{Number: 22, Service: "ssh", Version: "OpenSSH 8.2p1", Banner: "SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.5"},
	{Number: 80, Service: "http", Version: "nginx 1.18.0", Banner: "nginx/1.18.0 (Ubuntu)"},
	{Number: 443, Service: "https", Version: "nginx 1.18.0", Banner: "nginx/1.18.0 (Ubuntu)"},
	{Number: 3306, Service: "mysql", Version: "MySQL 8.0.28", Banner: "MySQL 8.0.28-0ubuntu0.20.04.3"},
}

var hostPorts = []int{80, 443, 22, 21, 25, 53, 110, 143, 993, 995, 8080, 8443}

var serviceFingerprints = []models.Technology{
	{Name: "nginx", Version: "1.18.0", Categories: []string{"Web Servers"}},
	{Name: "Apache", Version: "2.4.41", Categories: []string{"Web Servers"}},
	{Name: "Node.js", Categories: []string{"Programming Languages"}},
	{Name: "React", Categories: []string{"JavaScript Frameworks"}},
	{Name: "PHP", Version: "7.4.3", Categories: []string{"Programming Languages"}},
	{Name: "MySQL", Version: "8.0", Categories: []string{"Databases"}},
	{Name: "Redis", Version: "6.0", Categories: []string{"Databases"}},
	{Name: "SSL/TLS", Categories: []string{"Security"}},
}

var webTechnologies = []models.Technology{
	{Name: "nginx", Version: "1.18.0", Categories: []string{"Web Servers"}},
	{Name: "PHP", Version: "7.4.3", Categories: []string{"Programming Languages"}},
	{Name: "MySQL", Version: "8.0.28", Categories: []string{"Databases"}},
	{Name: "jQuery", Version: "3.6.0", Categories: []string{"JavaScript Libraries"}},
	{Name: "Bootstrap", Version: "4.6.0", Categories: []string{"UI Frameworks"}},
	{Name: "WordPress", Version: "5.8.1", Categories: []string{"CMS"}},
}

var hostTechnologies = []string{"nginx", "Apache", "Cloudflare", "jQuery", "React", "Node.js", "PHP", "MySQL"}

var hostIssues = []string{
	"Missing HSTS Header",
	"Weak SSL Configuration",
	"Directory Listing Enabled",
	"Information Disclosure",
	"Outdated Software Version",
}

var responseHeaders = map[string]string{
	"Server":        "nginx/1.18.0 (Ubuntu)",
	"X-Powered-By":  "PHP/7.4.3",
	"Content-Type":  "text/html; charset=UTF-8",
	"Cache-Control": "no-cache, must-revalidate",
	"Set-Cookie":    "PHPSESSID=abc123; path=/",
}

var directories = []models.Directory{
	{Path: "/admin", Status: 200, Size: 1024},
	{Path: "/wp-admin", Status: 403},
	{Path: "/api", Status: 200, Size: 512},
	{Path: "/backup", Status: 403},
	{Path: "/config", Status: 404},
	{Path: "/uploads", Status: 200, Size: 2048},
	{Path: "/.git", Status: 403},
	{Path: "/phpmyadmin", Status: 200, Size: 4096},
}

var forms = []models.Form{
	{Action: "/login", Method: "POST", Inputs: []string{"username", "password", "csrf_token"}},
	{Action: "/contact", Method: "POST", Inputs: []string{"name", "email", "message"}},
	{Action: "/search", Method: "GET", Inputs: []string{"q"}},
	{Action: "/upload", Method: "POST", Inputs: []string{"file", "description"}},
}

var cookies = []models.Cookie{
	{Name: "PHPSESSID", Secure: false, HTTPOnly: true, SameSite: "Lax"},
	{Name: "remember_token", Secure: false, HTTPOnly: false},
	{Name: "_analytics", Secure: true, HTTPOnly: false, SameSite: "None"},
}

var basicVulnerabilities = []models.Vulnerability{
	{
		Severity:    models.SeverityCritical,
		Title:       "SQL Injection in login form",
		Description: "The login form is vulnerable to SQL injection attacks",
		CVE:         "CVE-2023-1234",
		Port:        443,
		Service:     "HTTPS",
	},
	{
		Severity:    models.SeverityHigh,
		Title:       "Cross-Site Scripting (XSS)",
		Description: "Reflected XSS vulnerability in search parameter",
		Port:        80,
		Service:     "HTTP",
	},
	{
		Severity:    models.SeverityMedium,
		Title:       "Outdated SSL/TLS Configuration",
		Description: "Server supports deprecated TLS versions",
		Port:        443,
		Service:     "HTTPS",
	},
	{
		Severity:    models.SeverityLow,
		Title:       "Information Disclosure",
		Description: "Server version disclosed in HTTP headers",
		Port:        80,
		Service:     "HTTP",
	},
	{
		Severity:    models.SeverityHigh,
		Title:       "Directory Traversal",
		Description: "Path traversal vulnerability in file upload",
		Port:        443,
		Service:     "HTTPS",
	},
}

// webFinding is a detailed finding a comprehensive phase may report, with
// the probability that the phase reports it.
type webFinding struct {
	tag         string
	probability float64
	vuln        models.Vulnerability
}

var (
	sqliFinding = webFinding{"sqli", 0.7, models.Vulnerability{
		Severity:    models.SeverityHigh,
		Title:       "SQL Injection in Login Form",
		Description: "The application is vulnerable to SQL injection attacks through the username parameter in the login form.",
		Category:    "Injection",
		CVE:         "CWE-89",
		CVSS:        8.1,
		Paths: []models.VulnerabilityPath{{
			Path:       "/login",
			Method:     "POST",
			Parameters: []string{"username"},
			Evidence:   "SQL error: 'You have an error in your SQL syntax'",
			Request:    "POST /login HTTP/1.1\nContent-Type: application/x-www-form-urlencoded\n\nusername=admin'&password=test",
			Response:   "HTTP/1.1 500 Internal Server Error\nSQL error: You have an error in your SQL syntax",
		}},
		Remediation: "Use parameterized queries or prepared statements to prevent SQL injection.",
		References:  []string{"https://owasp.org/www-community/attacks/SQL_Injection"},
		Impact:      "Attackers could potentially access, modify, or delete database contents.",
		Likelihood:  "high",
		Confidence:  "certain",
	}}

	xssFinding = webFinding{"xss", 0.6, models.Vulnerability{
		Severity:    models.SeverityMedium,
		Title:       "Reflected Cross-Site Scripting (XSS)",
		Description: "The search parameter reflects user input without proper encoding, allowing XSS attacks.",
		Category:    "Cross-Site Scripting",
		CVE:         "CWE-79",
		CVSS:        6.1,
		Paths: []models.VulnerabilityPath{{
			Path:       "/search",
			Method:     "GET",
			Parameters: []string{"q"},
			Evidence:   "<script>alert('XSS')</script> was reflected in the response",
			Request:    "GET /search?q=<script>alert('XSS')</script> HTTP/1.1",
			Response:   "HTTP/1.1 200 OK\nResults for: <script>alert('XSS')</script>",
		}},
		Remediation: "Implement proper input validation and output encoding.",
		References:  []string{"https://owasp.org/www-community/attacks/xss/"},
		Impact:      "Attackers could execute malicious scripts in victims' browsers.",
		Likelihood:  "medium",
		Confidence:  "firm",
	}}

	csrfFinding = webFinding{"csrf", 0.5, models.Vulnerability{
		Severity:    models.SeverityMedium,
		Title:       "Cross-Site Request Forgery (CSRF)",
		Description: "The application does not implement CSRF protection tokens.",
		Category:    "Cross-Site Request Forgery",
		CVE:         "CWE-352",
		CVSS:        5.4,
		Paths: []models.VulnerabilityPath{{
			Path:       "/profile/update",
			Method:     "POST",
			Parameters: []string{"email", "name"},
			Evidence:   "No CSRF token found in form or request headers",
			Request:    "POST /profile/update HTTP/1.1\nContent-Type: application/x-www-form-urlencoded\n\nemail=new@example.com",
			Response:   "HTTP/1.1 200 OK\nProfile updated successfully",
		}},
		Remediation: "Implement CSRF tokens for all state-changing operations.",
		References:  []string{"https://owasp.org/www-community/attacks/csrf"},
		Impact:      "Attackers could perform unauthorized actions on behalf of authenticated users.",
		Likelihood:  "medium",
		Confidence:  "firm",
	}}

	authFinding = webFinding{"auth", 0.2, models.Vulnerability{
		Severity:    models.SeverityHigh,
		Title:       "Weak Password Policy",
		Description: "The application accepts weak passwords with insufficient complexity requirements.",
		Category:    "Authentication",
		CVE:         "CWE-521",
		CVSS:        7.5,
		Paths: []models.VulnerabilityPath{{
			Path:       "/register",
			Method:     "POST",
			Parameters: []string{"password"},
			Evidence:   "Password '123456' was accepted",
			Request:    "POST /register HTTP/1.1\nContent-Type: application/x-www-form-urlencoded\n\nusername=test&password=123456",
			Response:   "HTTP/1.1 200 OK\nAccount created successfully",
		}},
		Remediation: "Implement strong password policies requiring minimum length, complexity, and entropy.",
		References:  []string{"https://owasp.org/www-community/controls/Password_Authentication"},
		Impact:      "Accounts could be compromised through brute force or dictionary attacks.",
		Likelihood:  "high",
		Confidence:  "certain",
	}}

	lfiFinding = webFinding{"lfi", 0.9, models.Vulnerability{
		Severity:    models.SeverityHigh,
		Title:       "Local File Inclusion (LFI)",
		Description: "The file parameter allows reading arbitrary files from the server filesystem.",
		Category:    "File Inclusion",
		CVE:         "CWE-22",
		CVSS:        7.5,
		Paths: []models.VulnerabilityPath{{
			Path:       "/download",
			Method:     "GET",
			Parameters: []string{"file"},
			Evidence:   "Contents of /etc/passwd were returned",
			Request:    "GET /download?file=../../../etc/passwd HTTP/1.1",
			Response:   "HTTP/1.1 200 OK\nroot:x:0:0:root:/root:/bin/bash\n...",
		}},
		Remediation: "Implement proper input validation and use whitelisting for allowed files.",
		References:  []string{"https://owasp.org/www-community/attacks/Path_Traversal"},
		Impact:      "Attackers could read sensitive files from the server.",
		Likelihood:  "medium",
		Confidence:  "certain",
	}}

	cmdFinding = webFinding{"cmd", 0.95, models.Vulnerability{
		Severity:    models.SeverityCritical,
		Title:       "OS Command Injection",
		Description: "The ping functionality allows execution of arbitrary system commands.",
		Category:    "Command Injection",
		CVE:         "CWE-78",
		CVSS:        9.8,
		Paths: []models.VulnerabilityPath{{
			Path:       "/ping",
			Method:     "POST",
			Parameters: []string{"host"},
			Evidence:   "System command output was returned",
			Request:    "POST /ping HTTP/1.1\nContent-Type: application/x-www-form-urlencoded\n\nhost=8.8.8.8;cat /etc/passwd",
			Response:   "HTTP/1.1 200 OK\nPING 8.8.8.8\nroot:x:0:0:root:/root:/bin/bash",
		}},
		Remediation: "Use safe APIs for system operations and validate all user inputs.",
		References:  []string{"https://owasp.org/www-community/attacks/Command_Injection"},
		Impact:      "Attackers could execute arbitrary commands on the server.",
		Likelihood:  "high",
		Confidence:  "certain",
	}}

	headersFinding = webFinding{"headers", 0.7, models.Vulnerability{
		Severity:    models.SeverityLow,
		Title:       "Missing Security Headers",
		Description: "The application is missing important security headers.",
		Category:    "Security Misconfiguration",
		CVE:         "CWE-16",
		CVSS:        3.7,
		Paths: []models.VulnerabilityPath{{
			Path:     "/",
			Method:   "GET",
			Evidence: "Missing headers: X-Content-Type-Options, X-Frame-Options, Content-Security-Policy",
			Request:  "GET / HTTP/1.1",
			Response: "HTTP/1.1 200 OK\nContent-Type: text/html\n(missing security headers)",
		}},
		Remediation: "Implement security headers: X-Content-Type-Options, X-Frame-Options, CSP, etc.",
		References:  []string{"https://owasp.org/www-project-secure-headers/"},
		Impact:      "Increased risk of various client-side attacks.",
		Likelihood:  "medium",
		Confidence:  "certain",
	}}

	cookieFinding = webFinding{"cookie", 0.6, models.Vulnerability{
		Severity:    models.SeverityMedium,
		Title:       "Insecure Cookie Configuration",
		Description: "Session cookies are not properly secured.",
		Category:    "Session Management",
		CVE:         "CWE-614",
		CVSS:        5.3,
		Paths: []models.VulnerabilityPath{{
			Path:     "/login",
			Method:   "POST",
			Evidence: "PHPSESSID cookie missing 'Secure' flag",
			Request:  "POST /login HTTP/1.1",
			Response: "HTTP/1.1 200 OK\nSet-Cookie: PHPSESSID=abc123; HttpOnly",
		}},
		Remediation: "Set Secure and SameSite flags on session cookies.",
		References:  []string{"https://owasp.org/www-community/controls/SecureCookieAttribute"},
		Impact:      "Session tokens could be intercepted over unencrypted connections.",
		Likelihood:  "medium",
		Confidence:  "certain",
	}}
)

// instantiate returns a copy of v with its own id and slices.
func instantiate(v models.Vulnerability, id string) models.Vulnerability {
	v.ID = id
	v.References = slices.Clone(v.References)
	v.Paths = slices.Clone(v.Paths)
	for i := range v.Paths {
		v.Paths[i].Parameters = slices.Clone(v.Paths[i].Parameters)
	}
	return v
}
