package svc

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/zeromicro/go-zero/core/stores/redis"

	"github.com/qx/taskmate_robot/api/internal/client"
	"github.com/qx/taskmate_robot/api/internal/config"
	"github.com/qx/taskmate_robot/api/internal/session"
)

// Bot is the outbound chat surface. *tgbotapi.BotAPI satisfies it; tests
// substitute a recording fake.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type ServiceContext struct {
	Config   config.Config
	Bot      Bot
	BotName  string
	Redis    *redis.Redis
	API      *client.Client
	Sessions *session.Store
}

func NewServiceContext(c config.Config) *ServiceContext {
	bot, err := tgbotapi.NewBotAPI(c.Bot.Token)
	if err != nil {
		panic(err)
	}
	bot.Debug = c.Bot.Debug

	rds := redis.MustNewRedis(c.Redis)

	return &ServiceContext{
		Config:   c,
		Bot:      bot,
		BotName:  bot.Self.UserName,
		Redis:    rds,
		API:      client.New(c.Api.BaseUrl, c.Api.Token, time.Duration(c.Api.TimeoutSeconds)*time.Second),
		Sessions: session.NewStore(rds),
	}
}
