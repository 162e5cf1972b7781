package config

type WorkerKeyStruct struct {
	NotificationOutboxQueue string
}

var WorkerKey = &WorkerKeyStruct{
	NotificationOutboxQueue: "notification_outbox_queue",
}
