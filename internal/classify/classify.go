package classify

import (
	"fmt"
	"regexp"
)

// Severity levels ordered low < medium < high < critical.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Attack categories. Each is matched independently; a payload may carry any
// subset.
const (
	CategorySQLInjection     = "sql_injection"
	CategoryCommandInjection = "command_injection"
	CategoryXSS              = "xss"
	CategoryPathTraversal    = "path_traversal"
	CategoryPromptInjection  = "prompt_injection"
	CategoryScan             = "scan"
	CategoryExploit          = "exploit"
)

var severityRank = map[string]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// attackRule groups compiled patterns for a single attack category.
type attackRule struct {
	Category  string
	Severity  string
	HumanName string
	Patterns  []*regexp.Regexp
}

// rules is built once at init and never mutated. Order is fixed so results
// are deterministic for identical payloads.
var rules []attackRule

func init() {
	rules = []attackRule{
		{
			Category:  CategorySQLInjection,
			Severity:  SeverityHigh,
			HumanName: "SQL injection",
			Patterns: compile(
				`(?im)(\b(union\s+(all\s+)?select|select\s+.{0,200}\s+from|insert\s+into|update\s+\S+\s+set|delete\s+from|drop\s+(table|database))\b)`,
				`(?im)('\s*or\s*'[^']*'\s*=\s*'|\bor\b\s+['"]?\d+['"]?\s*=\s*['"]?\d+)`,
				`(?im)('\s*--|--\s*$|/\*.*?\*/)`,
				`(?im)(\b(sleep|benchmark|waitfor\s+delay|pg_sleep)\s*\()`,
				`(?im)(information_schema|load_file\s*\(|into\s+(out|dump)file)`,
				`(?im)(xp_cmdshell|sp_executesql)`,
				`(?im)(;\s*(drop|alter|create|truncate|exec|execute)\b)`,
			),
		},
		{
			Category:  CategoryCommandInjection,
			Severity:  SeverityCritical,
			HumanName: "Command injection",
			Patterns: compile(
				`(?im)(;\s*(ls|cat|whoami|id|uname|pwd|curl|wget|nc|ncat|bash|sh|cmd|rm|chmod)\b)`,
				`(?im)(\|\s*(ls|cat|whoami|id|uname|pwd|curl|wget|nc|bash|sh|cmd)\b)`,
				"(?m)(`[^`]+`|\\$\\([^)]+\\)|\\$\\{[^}]+\\})",
				`(?im)(/bin/(ba)?sh|/usr/bin/(perl|python\d?|ruby))`,
				`(?im)((%26%26|&&|%0a|\n)\s*(whoami|id|cat|ls|curl|wget|uname))`,
				`(?im)(\b(system|popen|proc_open|shell_exec|passthru)\s*\()`,
			),
		},
		{
			Category:  CategoryXSS,
			Severity:  SeverityMedium,
			HumanName: "Cross-site scripting",
			Patterns: compile(
				`(?im)(<\s*script\b|<\s*/\s*script\s*>)`,
				`(?im)(javascript\s*:|vbscript\s*:)`,
				`(?im)(\bon(error|load|click|mouseover|focus|blur|submit|change|keydown|keyup)\s*=)`,
				`(?im)(<\s*(iframe|embed|object)\b)`,
				`(?im)(document\s*\.\s*(cookie|location|write)|window\s*\.\s*location)`,
				`(?im)(<\s*img\b[^>]*\bsrc\s*=\s*['"]?javascript)`,
			),
		},
		{
			Category:  CategoryPathTraversal,
			Severity:  SeverityHigh,
			HumanName: "Path traversal",
			Patterns: compile(
				`(?m)((\.\./|\.\.\\){2,})`,
				`(?im)((%2e%2e%2f|%2e%2e/|\.\.%2f|%2e%2e%5c){1,})`,
				`(?im)(/etc/(passwd|shadow|hosts|issue|group)|/proc/(self|version|cmdline)|/root/)`,
				`(?im)(c:\\+windows|c:/windows|boot\.ini|win\.ini)`,
			),
		},
		{
			Category:  CategoryPromptInjection,
			Severity:  SeverityMedium,
			HumanName: "Prompt injection",
			Patterns: compile(
				`(?im)(ignore\s+(all\s+)?(previous|above|prior)\s+(instructions|prompts|rules))`,
				`(?im)(disregard\s+(your|all|previous)\s+(instructions|rules|guidelines))`,
				`(?im)(you\s+are\s+now\s+|pretend\s+(to\s+be|you\s+are))`,
				`(?im)(\bjailbreak\b|\bDAN\s+mode\b|developer\s+mode)`,
				`(?im)(\[SYSTEM\]|<\s*system\s*>|system\s+prompt\s*:)`,
				`(?im)(bypass\s+(safety|content|your)\s*(filters?|policy|guidelines)?)`,
				`(?im)(reveal\s+(your\s+)?(system\s+prompt|instructions|secrets))`,
			),
		},
		{
			Category:  CategoryScan,
			Severity:  SeverityLow,
			HumanName: "Scanner / reconnaissance",
			Patterns: compile(
				`(?im)\b(nmap|sqlmap|nikto|gobuster|dirbuster|masscan|zgrab|nuclei|wfuzz|ffuf|feroxbuster|wpscan|acunetix|nessus|openvas|burpsuite|zaproxy)\b`,
				`(?im)(/\.git(/|\b)|/\.env\b|/\.aws/|/\.ssh/)`,
				`(?im)(/wp-admin|/wp-login\.php|/xmlrpc\.php|/phpmyadmin|/adminer|/phpinfo\.php)`,
				`(?im)(/server-status|/actuator|/swagger|/api-docs|/\.well-known/security\.txt)`,
				`(?im)(/cgi-bin/|/shell\.php|/config\.php|/setup\.php|/install\.php)`,
			),
		},
		{
			Category:  CategoryExploit,
			Severity:  SeverityCritical,
			HumanName: "Known exploit",
			Patterns: compile(
				`(?im)\bCVE-\d{4}-\d{4,}\b`,
				`(?im)(\$\{jndi\s*:\s*(ldap|rmi|dns)s?\s*:|log4shell)`,
				`(?im)(gopher://|dict://|file://)`,
				`(?im)(eval\s*\(\s*base64|base64_decode\s*\(|eval\s*\(\s*gzinflate)`,
				`(?im)(\bstruts2?\b.{0,40}ognl|%\{#context)`,
				`(?im)(shellshock|\(\)\s*\{\s*:;\s*\};)`,
			),
		},
	}
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Classify runs every category's patterns over the payload. It is a pure
// function: no state, no side effects, identical input gives identical
// output. The first matching pattern within a category flags it; remaining
// patterns in that category are skipped.
func Classify(payload string) *Result {
	res := &Result{
		Severities:     map[string]string{},
		MatchedPattern: map[string]string{},
	}
	for _, rule := range rules {
		for _, pat := range rule.Patterns {
			if pat.MatchString(payload) {
				res.Categories = append(res.Categories, rule.Category)
				res.Severities[rule.Category] = rule.Severity
				res.MatchedPattern[rule.Category] = pat.String()
				res.Reasons = append(res.Reasons, fmt.Sprintf("%s pattern matched", rule.HumanName))
				break
			}
		}
	}
	return res
}
