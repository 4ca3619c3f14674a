package utils

import (
	"errors"
	"log"

	"sellerdesk/models"

	"gorm.io/gorm"
)

// DefaultTriggerPhrase identifies the initial outreach message. A seller
// message containing this substring (with no later client reply) makes the
// chat a candidate for a follow-up sequence. Overridden by
// user_settings.no_reply_trigger_phrase when set.
const DefaultTriggerPhrase = "Мы увидели ваш отзыв и очень хотим разобраться"

// Built-in closing messages delivered as the last step of each script.
const (
	defaultStopMessage = `Здравствуйте! Мы так и не получили от вас ответа, но хотим, чтобы вы знали — ваш отзыв не остался без внимания.

Мы уже учли обратную связь по этому товару и работаем над улучшениями. Если в будущем захотите вернуться к разговору — мы всегда на связи.

Спасибо, что нашли время поделиться впечатлениями. Хорошего дня!`

	defaultStopMessageFourStar = `Здравствуйте! Видим, что вы не смогли ответить — ничего страшного.

Мы рады, что в целом товар вам понравился, и благодарны за честную оценку. Если когда-нибудь захотите рассказать, чего не хватило — пишите, мы всегда открыты.

Хорошего дня!`
)

// defaultFollowupTemplates is the built-in 14-day script for negative reviews.
// Three phases: discovery (day 1-4), understanding (day 5-9), resolution
// (day 10-14).
var defaultFollowupTemplates = []models.StepTemplate{
	{Day: 1, Text: "Здравствуйте! Мы увидели ваш отзыв и хотели бы разобраться. Расскажите, пожалуйста, что именно пошло не так?"},
	{Day: 2, Text: "Добрый день! Нам важно понять вашу ситуацию. Что именно вас расстроило в товаре? Мы хотим помочь."},
	{Day: 3, Text: "Здравствуйте! Мы не торопим с ответом — просто хотим убедиться, что вы знаете: мы готовы разобраться в ситуации."},
	{Day: 4, Text: "Добрый день! Мы по-прежнему хотим понять, что произошло. Ваша обратная связь поможет нам стать лучше."},
	{Day: 5, Text: "Здравствуйте! Мы видим, что вы не смогли ответить — ничего страшного. Если товар не оправдал ожиданий, мы хотим это исправить."},
	{Day: 6, Text: "Добрый день! Мы относимся к каждому отзыву серьёзно. Если есть проблема — мы готовы предложить решение."},
	{Day: 7, Text: "Здравствуйте! Мы по-прежнему на связи и хотим помочь. Напишите, когда будет удобно — мы подстроимся."},
	{Day: 8, Text: "Добрый день! Мы понимаем, что у всех свои дела. Просто знайте — мы готовы помочь в любой момент."},
	{Day: 9, Text: "Здравствуйте! Напоминаем о себе. Мы по-прежнему хотим найти решение, которое вас устроит."},
	{Day: 10, Text: "Добрый день! Мы готовы предложить компенсацию за доставленные неудобства. Напишите — и мы обсудим детали."},
	{Day: 11, Text: "Здравствуйте! Наше предложение помочь по-прежнему актуально. Мы хотим исправить ситуацию со своей стороны."},
	{Day: 12, Text: "Добрый день! Скоро мы закроем это обращение. Если хотите обсудить компенсацию — напишите нам."},
	{Day: 13, Text: "Здравствуйте! Это предпоследнее сообщение. Мы по-прежнему готовы к диалогу и хотим помочь."},
	{Day: 14, Text: "Добрый день! Мы закрываем обращение. Если в будущем захотите вернуться к разговору — мы на связи. Спасибо!"},
}

// defaultFollowupTemplatesFourStar is the built-in script for 4-star reviews:
// learn what was missing for five stars, offer to help.
var defaultFollowupTemplatesFourStar = []models.StepTemplate{
	{Day: 1, Text: "Здравствуйте! Спасибо за вашу оценку! Нам интересно — чего не хватило до идеала? Может, что-то можно было сделать лучше?"},
	{Day: 2, Text: "Добрый день! Мы видим, что товар вам скорее понравился, но что-то всё же смутило. Расскажете? Нам правда важно это понять."},
	{Day: 3, Text: "Здравствуйте! Возможно, дело в упаковке, комплектации или чём-то ещё? Мы хотим разобраться, чтобы стать лучше."},
	{Day: 4, Text: "Добрый день! Мы не торопим — просто хотели напомнить, что нам интересно ваше мнение. Что бы вы улучшили?"},
	{Day: 5, Text: "Здравствуйте! Мы ценим, что вы нашли время оставить отзыв. Если что-то в товаре не устроило — мы готовы помочь это исправить."},
	{Day: 6, Text: "Добрый день! Хотели сказать — мы серьёзно относимся к каждому отзыву. Если есть что-то, что мы можем сделать для вас — напишите."},
	{Day: 7, Text: "Здравствуйте! Мы по-прежнему на связи. Если обнаружите, что с товаром что-то не так — обращайтесь, мы поможем."},
	{Day: 8, Text: "Добрый день! Просто напоминаем, что мы готовы бесплатно помочь с любым вопросом по товару. Ваше мнение для нас важно."},
	{Day: 9, Text: "Здравствуйте! Если у вас не было времени ответить — ничего страшного. Мы подождём, когда будет удобно."},
	{Day: 10, Text: "Добрый день! Мы всё ещё рады помочь, если что-то в товаре можно улучшить. Напишите — и мы предложим решение."},
	{Day: 11, Text: "Здравствуйте! Наше предложение помочь по-прежнему в силе. Мы хотим, чтобы вы остались довольны покупкой."},
	{Day: 12, Text: "Добрый день! Скоро мы закроем это обращение, но если вы захотите обсудить товар — мы будем рады."},
	{Day: 13, Text: "Здравствуйте! Это предпоследнее сообщение от нас. Если есть что сказать — мы внимательно слушаем."},
	{Day: 14, Text: "Добрый день! Мы закрываем обращение, но если в будущем захотите вернуться к разговору — пишите. Спасибо за ваше время!"},
}

// ErrUnknownSequenceType is returned for sequence types the provider does not
// know about.
var ErrUnknownSequenceType = errors.New("unknown sequence type")

// TemplateProvider resolves the trigger phrase and the follow-up script for a
// sequence type: user settings first, built-in defaults otherwise. The result
// is bound to the sequence at creation time and never re-read afterwards.
type TemplateProvider struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTemplateProvider(db *gorm.DB, logger *log.Logger) *TemplateProvider {
	return &TemplateProvider{DB: db, Logger: logger}
}

// TriggerPhrase returns the configured trigger phrase or the built-in default.
// A missing or unreadable settings row falls back rather than failing: the
// selector must stay runnable even when configuration is broken.
func (tp *TemplateProvider) TriggerPhrase() string {
	settings, err := tp.settings()
	if err != nil {
		tp.Logger.Printf("Settings unavailable, using default trigger phrase: %v", err)
		return DefaultTriggerPhrase
	}
	if settings.NoReplyTriggerPhrase != "" {
		return settings.NoReplyTriggerPhrase
	}
	return DefaultTriggerPhrase
}

// TemplateSet returns the ordered step list for a sequence type, with the
// closing message appended as the final step.
func (tp *TemplateProvider) TemplateSet(sequenceType string) ([]models.StepTemplate, error) {
	steps, stop := defaultFollowupTemplates, defaultStopMessage
	switch sequenceType {
	case models.SequenceTypeNoReply:
	case models.SequenceTypeFourStar:
		steps, stop = defaultFollowupTemplatesFourStar, defaultStopMessageFourStar
	default:
		return nil, ErrUnknownSequenceType
	}

	settings, err := tp.settings()
	if err != nil {
		tp.Logger.Printf("Settings unavailable, using default templates: %v", err)
	} else {
		switch sequenceType {
		case models.SequenceTypeNoReply:
			if len(settings.NoReplyMessages) > 0 {
				steps = settings.NoReplyMessages
			}
			if settings.NoReplyStopMessage != "" {
				stop = settings.NoReplyStopMessage
			}
		case models.SequenceTypeFourStar:
			if len(settings.NoReplyFourStarMessages) > 0 {
				steps = settings.NoReplyFourStarMessages
			}
			if settings.NoReplyFourStarStopMessage != "" {
				stop = settings.NoReplyFourStarStopMessage
			}
		}
	}

	bound := make([]models.StepTemplate, 0, len(steps)+1)
	bound = append(bound, steps...)
	bound = append(bound, models.StepTemplate{Day: lastDay(steps) + 1, Text: stop})
	return bound, nil
}

func (tp *TemplateProvider) settings() (*models.UserSettings, error) {
	var settings models.UserSettings
	if err := tp.DB.First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

func lastDay(steps []models.StepTemplate) int {
	if len(steps) == 0 {
		return 0
	}
	return steps[len(steps)-1].Day
}
