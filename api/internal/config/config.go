package config

import "github.com/zeromicro/go-zero/core/stores/redis"

type Config struct {
	Bot struct {
		Token string
		Debug bool `json:",optional"`
	}
	Api struct {
		BaseUrl        string
		Token          string
		TimeoutSeconds int `json:",default=10"`
	}
	Redis    redis.RedisConf
	Notifier struct {
		IntervalMinutes int `json:",default=5"`
	}
}
