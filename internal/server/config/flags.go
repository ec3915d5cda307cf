package config

import (
	"flag"
	"os"
	"time"

	"github.com/wayfarerapp/wayfarer-server/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-r int      export retention, minutes
//	-k int      housekeeping interval, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-m string   SMTP relay address (host:port); empty disables real mail
//	-f string   SMTP from address
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration
// flags are accepted as integers in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-r", "-k", "-u", "-p", "-b", "-g", "-e", "-m", "-f"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	exportRetention := fs.Int("r", int(config.ExportRetention.Minutes()), "export_retention (in minutes)")
	housekeepingInterval := fs.Int("k", int(config.HousekeepingInterval.Minutes()), "housekeeping_interval (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.SMTPAddr, "m", config.SMTPAddr, "SMTP relay address")
	fs.StringVar(&config.SMTPFrom, "f", config.SMTPFrom, "SMTP from address")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ExportRetention = time.Duration(*exportRetention) * time.Minute
	config.HousekeepingInterval = time.Duration(*housekeepingInterval) * time.Minute
}
