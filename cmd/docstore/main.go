package main

import (
	"github.com/nimburion/docstore/pkg/cli"
)

func main() {
	cli.Execute(cli.NewServiceCommand(cli.CommandOptions{
		Name:        "docstore",
		Description: "Uniform document store over memory, MongoDB, Redis, Elasticsearch, DynamoDB, PostgreSQL, MySQL, S3 and memcached",
		EnvPrefix:   "DOCSTORE",
	}))
}
