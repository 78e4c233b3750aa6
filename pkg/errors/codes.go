package errors

// Code is a machine-readable error code of the form CATEGORY_NNN.
type Code string

// Category prefixes. See the package documentation for their meaning.
const (
	CategoryValidation     = "VAL"
	CategoryAuthentication = "AUTH"
	CategoryAuthorization  = "AUTHZ"
	CategoryNotFound       = "NF"
	CategoryConflict       = "CONF"
	CategoryProvisioning   = "PROV"
	CategoryInternal       = "INT"
	CategoryUnavailable    = "UNAVAIL"
	CategoryTimeout        = "TIMEOUT"
)

// Validation errors.
const (
	CodeValidation         Code = "VAL_001"
	CodeValidationRequired Code = "VAL_002"
	CodeValidationFormat   Code = "VAL_003"
)

// Authentication errors. CodeAuthentication is the collapsed outcome shown
// to callers; the remaining codes identify which verification step failed.
const (
	CodeAuthentication              Code = "AUTH_001"
	CodeAuthenticationExpired       Code = "AUTH_002"
	CodeAuthenticationMalformed     Code = "AUTH_003"
	CodeAuthenticationUnknownKey    Code = "AUTH_004"
	CodeAuthenticationBadSignature  Code = "AUTH_005"
	CodeAuthenticationInvalidIssuer Code = "AUTH_006"
)

// Authorization errors.
const (
	CodeAuthorization       Code = "AUTHZ_001"
	CodeAuthorizationDenied Code = "AUTHZ_002"
)

// Not found errors.
const (
	CodeNotFound        Code = "NF_001"
	CodeNotFoundAccount Code = "NF_002"
)

// Conflict errors.
const (
	CodeConflict              Code = "CONF_001"
	CodeConflictAlreadyExists Code = "CONF_002"
)

// CodeProvisioningFailed reports a non-success answer from the identity
// provider's admin API, or a success answer without an account identifier.
const CodeProvisioningFailed Code = "PROV_001"

// Internal errors.
const (
	CodeInternal              Code = "INT_001"
	CodeInternalDatabase      Code = "INT_002"
	CodeInternalConfiguration Code = "INT_003"
)

// Unavailable errors.
const (
	CodeUnavailable           Code = "UNAVAIL_001"
	CodeUnavailableDependency Code = "UNAVAIL_002"
)

// Timeout errors.
const (
	CodeTimeout           Code = "TIMEOUT_001"
	CodeTimeoutDatabase   Code = "TIMEOUT_002"
	CodeTimeoutDependency Code = "TIMEOUT_003"
)

// String returns the code as a string.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore ("AUTH" for
// "AUTH_002"). A code without an underscore is its own category.
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
