package config

const (
	EnvPrefix = "SERVICEREPORT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "SERVICEREPORT_APP_ENV"
	EnvPort         = "SERVICEREPORT_APP_PORT"
	EnvTimeZone     = "SERVICEREPORT_TIME_ZONE"
	EnvDBDSN        = "SERVICEREPORT_DB_DSN"
	EnvDBHost       = "SERVICEREPORT_DB_HOST"
	EnvDBUser       = "SERVICEREPORT_DB_USER"
	EnvDBName       = "SERVICEREPORT_DB_NAME"
	EnvRedisURL     = "SERVICEREPORT_REDIS_URL"
	EnvJWTSecret    = "SERVICEREPORT_JWT_SECRET"
	EnvGCPProjectID = "SERVICEREPORT_GCP_PROJECT_ID"
	EnvGCSBucket    = "SERVICEREPORT_GCS_BUCKET_NAME"
	EnvSMTPUsername = "SERVICEREPORT_SMTP_USERNAME"
	EnvSMTPPassword = "SERVICEREPORT_SMTP_PASSWORD"
	EnvOpsMailbox   = "SERVICEREPORT_OPS_MAILBOX"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
