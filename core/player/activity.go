package player

import (
	"VibeMelody/core/realtime"
	"VibeMelody/logger"
	"VibeMelody/model"
)

// Publisher receives one call per audible transition.
type Publisher interface {
	Playing(track model.Track)
	Idle()
}

// ActivityPublisher mirrors playback transitions onto the presence channel as
// update_activity events. Nothing is sent without an authenticated session.
type ActivityPublisher struct {
	ch realtime.Channel
}

// NewActivityPublisher 创建活动发布器
func NewActivityPublisher(ch realtime.Channel) *ActivityPublisher {
	return &ActivityPublisher{ch: ch}
}

func (p *ActivityPublisher) Playing(track model.Track) {
	p.publish(track.Label())
}

func (p *ActivityPublisher) Idle() {
	p.publish(model.IdleActivity)
}

func (p *ActivityPublisher) publish(activity string) {
	userID, ok := p.ch.UserID()
	if !ok {
		return
	}
	evt, err := realtime.NewEvent(realtime.EventUpdateActivity, realtime.ActivityData{
		UserID:   userID,
		Activity: activity,
	})
	if err != nil {
		logger.Warn("build activity event", logger.ErrorField(err))
		return
	}
	if err := p.ch.Emit(evt); err != nil {
		logger.Debug("activity not published",
			logger.String("activity", activity),
			logger.ErrorField(err))
	}
}
