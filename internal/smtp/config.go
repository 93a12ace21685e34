package smtp

import "time"

type Config struct {
	User             string
	Password         string
	Host             string
	Port             int
	From             string
	AllowInsecureTls bool
	Timeout          time.Duration
}
