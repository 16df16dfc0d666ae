package sessions

// Note the storefront UI may depend on some of these values, changing them will log everyone out
const (
	SessionCookieName = "_storefront_session"
	DeviceCookieName  = "_storefront_device"
	SessionCtxKey     = "storefront_session"
	CredentialsCtxKey = "storefront_credentials"
)
