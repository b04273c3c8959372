package main

import (
	"context"
	"flag"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/zeromicro/go-zero/core/conf"

	"github.com/qx/taskmate_robot/api/internal/config"
	"github.com/qx/taskmate_robot/api/internal/engine"
	"github.com/qx/taskmate_robot/api/internal/handler"
	"github.com/qx/taskmate_robot/api/internal/logic"
	"github.com/qx/taskmate_robot/api/internal/notifier"
	"github.com/qx/taskmate_robot/api/internal/svc"
)

var configFile = flag.String("f", "etc/taskmate.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)

	svcCtx := svc.NewServiceContext(c)

	basic := logic.NewBasicLogic(svcCtx)
	tasks := logic.NewTaskLogic(svcCtx)
	groups := logic.NewGroupLogic(svcCtx)
	finances := logic.NewFinancialLogic(svcCtx)
	notifications := logic.NewNotificationLogic(svcCtx)

	dispatcher := engine.NewDispatcher(basic.OnError)
	dispatcher.HandleCommand("start", basic.Start)
	dispatcher.HandleCommand("help", basic.Help)
	dispatcher.HandleCommand("cancel", basic.Cancel)
	dispatcher.HandleCommand("task", tasks.Menu)
	dispatcher.HandleCommand("group", groups.Menu)
	dispatcher.HandleCommand("finance", finances.Menu)
	dispatcher.HandleCommand("notifications", notifications.Menu)
	dispatcher.Register(tasks.Conversation())
	dispatcher.Register(groups.Conversation())
	dispatcher.Register(finances.Conversation())
	dispatcher.HandleCallback(engine.CallbackPrefix("notify_"), notifications.HandleSelection)

	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "Get started"},
		{Command: "help", Description: "How to use the bot"},
		{Command: "task", Description: "View and manage tasks"},
		{Command: "finance", Description: "View and manage finances"},
		{Command: "group", Description: "View and manage groups"},
		{Command: "notifications", Description: "Deadline reminder settings"},
		{Command: "cancel", Description: "Cancel the current operation"},
	}
	if _, err := svcCtx.Bot.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		log.Printf("set commands failed: %v", err)
	}

	bot := svcCtx.Bot.(*tgbotapi.BotAPI)
	me, err := bot.GetMe()
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("bot started: @%s", me.UserName)

	ctx := context.Background()
	go notifier.New(svcCtx).Run(ctx)

	h := handler.NewBotHandler(svcCtx, dispatcher)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	for update := range updates {
		h.HandleUpdate(ctx, update)
	}
}
