// Package conversation interprets inbound Telegram events against each
// user's session state and decides when a download job is dispatched.
package conversation

import (
	"context"
	"log"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/grabtube/grabtube/internal/model/convo"
	"github.com/grabtube/grabtube/internal/model/format"
	"github.com/grabtube/grabtube/internal/service/cookiejar"
	"github.com/grabtube/grabtube/internal/service/job"
	"github.com/grabtube/grabtube/internal/service/session"
	"github.com/grabtube/grabtube/internal/telegram"
)

// Callback payload namespaces. The prefix tells the router which step a
// button press belongs to; the remainder is the step-specific value.
const (
	prefixFormat     = "format:"
	prefixCookie     = "cookie:"
	prefixCookieFile = "cookiefile:"
)

const (
	msgExpired       = "Session expired, send the link again."
	msgChooseFormat  = "Choose a format:"
	msgCookiePrompt  = "Use cookies (for private videos)?"
	msgCookieSaved   = "You have a saved cookies file. Reuse it or upload a new one?"
	msgAwaitUpload   = "OK. Now send me your cookies.txt file."
	msgRetryUpload   = "Please send a .txt file. Try again."
	msgPreparing     = "🚀 Preparing the download..."
	msgUploadedStart = "Cookies file received. 🚀 Preparing the download..."
	msgLinkHint      = "Send me a link starting with http:// or https://."
)

// Dispatcher hands a ready job off for asynchronous execution.
type Dispatcher interface {
	Dispatch(j job.Job)
}

// Service is the conversation state machine. It owns the session store;
// dispatched jobs receive a value copy and never touch it.
type Service struct {
	sessions  *session.Service
	jar       *cookiejar.Jar
	messenger telegram.Messenger
	catalog   *format.Catalog
	dispatch  Dispatcher
	limitMB   int64
}

// NewService wires the state machine against its collaborators.
func NewService(sessions *session.Service, jar *cookiejar.Jar, messenger telegram.Messenger, catalog *format.Catalog, dispatch Dispatcher, limitMB int64) *Service {
	return &Service{
		sessions:  sessions,
		jar:       jar,
		messenger: messenger,
		catalog:   catalog,
		dispatch:  dispatch,
		limitMB:   limitMB,
	}
}

// HandleUpdate routes one inbound event. Errors are handled per turn and
// never returned: every failure path ends in a user-visible notice or a
// log line.
func (s *Service) HandleUpdate(ctx context.Context, update *tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		s.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		s.handleMessage(ctx, update.Message)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID

	switch {
	case msg.IsCommand():
		if msg.Command() == "start" {
			s.sendWelcome(msg)
		}
	case msg.Document != nil:
		s.handleDocument(ctx, msg)
	case looksLikeURL(msg.Text):
		s.startSession(userID, msg.Chat.ID, strings.TrimSpace(msg.Text))
	case strings.TrimSpace(msg.Text) != "":
		if _, err := s.messenger.SendMessage(msg.Chat.ID, msgLinkHint); err != nil {
			log.Printf("[conversation] hint send failed: %v", err)
		}
	}
}

func (s *Service) sendWelcome(msg *tgbotapi.Message) {
	name := msg.From.FirstName
	if name == "" {
		name = "there"
	}
	text := "Hi, " + name + "!\n\n" +
		"Send me a video link and I will download it for you.\n\n" +
		"⚠️ Remember: I can only send files up to " + strconv.FormatInt(s.limitMB, 10) + " MB."
	if _, err := s.messenger.SendMessage(msg.Chat.ID, text); err != nil {
		log.Printf("[conversation] welcome send failed: %v", err)
	}
}

// startSession begins a fresh conversation for the user. Any in-flight
// session is discarded: the last URL always wins.
func (s *Service) startSession(userID, chatID int64, rawURL string) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 3)
	for _, f := range s.catalog.All() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(f.Label, prefixFormat+f.Key),
		))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)

	messageID, err := s.messenger.SendKeyboard(chatID, msgChooseFormat, kb)
	if err != nil {
		log.Printf("[conversation] format prompt failed for user %d: %v", userID, err)
		return
	}

	s.sessions.Put(userID, convo.Session{
		ChatID:          chatID,
		PromptMessageID: messageID,
		URL:             rawURL,
		Stage:           convo.StageChooseFormat,
	})
}

func (s *Service) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	data := cb.Data
	switch {
	case strings.HasPrefix(data, prefixFormat):
		s.handleFormatChoice(cb, strings.TrimPrefix(data, prefixFormat))
	case strings.HasPrefix(data, prefixCookie):
		s.handleCookieChoice(cb, strings.TrimPrefix(data, prefixCookie))
	case strings.HasPrefix(data, prefixCookieFile):
		s.handleCookieFileChoice(cb, strings.TrimPrefix(data, prefixCookieFile))
	default:
		s.ack(cb.ID)
	}
}

// handleFormatChoice records the selected format and asks about cookies.
func (s *Service) handleFormatChoice(cb *tgbotapi.CallbackQuery, key string) {
	userID := cb.From.ID

	f, ok := s.catalog.Lookup(key)
	if !ok {
		s.expired(cb.ID)
		return
	}

	err := s.sessions.Update(userID, func(sess *convo.Session) {
		sess.FormatKey = f.Key
		sess.Stage = convo.StageChooseCookie
	})
	if err != nil {
		s.expired(cb.ID)
		return
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Yes", prefixCookie+"yes"),
		tgbotapi.NewInlineKeyboardButtonData("No", prefixCookie+"no"),
	))
	if err := s.messenger.EditKeyboard(cb.Message.Chat.ID, cb.Message.MessageID, msgCookiePrompt, kb); err != nil {
		log.Printf("[conversation] cookie prompt edit failed for user %d: %v", userID, err)
	}
	s.ack(cb.ID)
}

// handleCookieChoice is the yes/no cookie decision. "no" dispatches
// immediately; "yes" branches on whether a saved cookie file exists.
func (s *Service) handleCookieChoice(cb *tgbotapi.CallbackQuery, choice string) {
	userID := cb.From.ID

	sess, ok := s.sessions.Get(userID)
	if !ok || sess.FormatKey == "" {
		s.expired(cb.ID)
		return
	}

	switch choice {
	case "no":
		s.dispatchJob(userID, "")
	case "yes":
		if s.jar.Exists(userID) {
			kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Reuse saved", prefixCookieFile+"reuse"),
				tgbotapi.NewInlineKeyboardButtonData("Upload new", prefixCookieFile+"new"),
			))
			if err := s.sessions.Update(userID, func(sess *convo.Session) {
				sess.Stage = convo.StageChooseCookieAction
			}); err != nil {
				s.expired(cb.ID)
				return
			}
			if err := s.messenger.EditKeyboard(sess.ChatID, sess.PromptMessageID, msgCookieSaved, kb); err != nil {
				log.Printf("[conversation] cookie action prompt failed for user %d: %v", userID, err)
			}
		} else {
			s.armUpload(cb, userID, sess)
			return
		}
	}
	s.ack(cb.ID)
}

// handleCookieFileChoice resolves the reuse-or-upload sub-choice for
// users with a saved cookie file.
func (s *Service) handleCookieFileChoice(cb *tgbotapi.CallbackQuery, choice string) {
	userID := cb.From.ID

	sess, ok := s.sessions.Get(userID)
	if !ok || sess.FormatKey == "" {
		s.expired(cb.ID)
		return
	}

	switch choice {
	case "reuse":
		s.dispatchJob(userID, s.jar.Path(userID))
		s.ack(cb.ID)
	case "new":
		s.armUpload(cb, userID, sess)
	default:
		s.ack(cb.ID)
	}
}

// armUpload moves the session into the upload stage: the next document
// from this user is taken as the cookie file.
func (s *Service) armUpload(cb *tgbotapi.CallbackQuery, userID int64, sess convo.Session) {
	if err := s.sessions.Update(userID, func(sess *convo.Session) {
		sess.Stage = convo.StageAwaitUpload
	}); err != nil {
		s.expired(cb.ID)
		return
	}
	if err := s.messenger.EditMessage(sess.ChatID, sess.PromptMessageID, msgAwaitUpload); err != nil {
		log.Printf("[conversation] upload prompt edit failed for user %d: %v", userID, err)
	}
	s.ack(cb.ID)
}

// handleDocument consumes an uploaded cookie file while the session is
// in the upload stage. Documents arriving outside that stage are
// ignored.
func (s *Service) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	sess, ok := s.sessions.Get(userID)
	if !ok {
		if _, err := s.messenger.SendMessage(msg.Chat.ID, msgExpired); err != nil {
			log.Printf("[conversation] expired notice failed: %v", err)
		}
		return
	}
	if sess.Stage != convo.StageAwaitUpload {
		log.Printf("[conversation] ignoring document from user %d in stage %s", userID, sess.Stage)
		return
	}

	if !strings.HasSuffix(strings.ToLower(msg.Document.FileName), ".txt") {
		// The upload stage stays armed; the user just tries again.
		if _, err := s.messenger.SendMessage(msg.Chat.ID, msgRetryUpload); err != nil {
			log.Printf("[conversation] retry notice failed: %v", err)
		}
		return
	}

	data, err := s.messenger.DownloadFile(msg.Document.FileID)
	if err != nil {
		log.Printf("[conversation] cookie fetch failed for user %d: %v", userID, err)
		if _, err := s.messenger.SendMessage(msg.Chat.ID, "Could not process the cookies file."); err != nil {
			log.Printf("[conversation] failure notice failed: %v", err)
		}
		return
	}

	cookiePath, err := s.jar.Save(userID, data)
	if err != nil {
		log.Printf("[conversation] cookie save failed for user %d: %v", userID, err)
		if _, err := s.messenger.SendMessage(msg.Chat.ID, "Could not process the cookies file."); err != nil {
			log.Printf("[conversation] failure notice failed: %v", err)
		}
		return
	}

	// The acknowledgement message doubles as the job's status message.
	statusID, err := s.messenger.SendMessage(msg.Chat.ID, msgUploadedStart)
	if err != nil {
		log.Printf("[conversation] upload ack failed for user %d: %v", userID, err)
		statusID = sess.PromptMessageID
	}

	sess, ok = s.sessions.Take(userID)
	if !ok {
		return
	}
	s.dispatch.Dispatch(job.Job{
		ID:              uuid.NewString(),
		UserID:          userID,
		ChatID:          sess.ChatID,
		StatusMessageID: statusID,
		URL:             sess.URL,
		Format:          s.mustFormat(sess.FormatKey),
		CookiePath:      cookiePath,
	})
}

// dispatchJob consumes the session and hands the job off. Take is
// atomic, so even concurrent duplicate button presses dispatch at most
// once; the loser sees an expired session.
func (s *Service) dispatchJob(userID int64, cookiePath string) {
	sess, ok := s.sessions.Take(userID)
	if !ok {
		return
	}
	if err := s.messenger.EditMessage(sess.ChatID, sess.PromptMessageID, msgPreparing); err != nil {
		log.Printf("[conversation] preparing edit failed for user %d: %v", userID, err)
	}
	s.dispatch.Dispatch(job.Job{
		ID:              uuid.NewString(),
		UserID:          userID,
		ChatID:          sess.ChatID,
		StatusMessageID: sess.PromptMessageID,
		URL:             sess.URL,
		Format:          s.mustFormat(sess.FormatKey),
		CookiePath:      cookiePath,
	})
}

// mustFormat resolves a format key recorded earlier in the session; the
// key was validated at selection time.
func (s *Service) mustFormat(key string) format.Format {
	f, _ := s.catalog.Lookup(key)
	return f
}

// expired answers a stale button press with a modal notice and changes
// no state.
func (s *Service) expired(callbackID string) {
	if err := s.messenger.AnswerCallback(callbackID, msgExpired, true); err != nil {
		log.Printf("[conversation] expired alert failed: %v", err)
	}
}

func (s *Service) ack(callbackID string) {
	if err := s.messenger.AnswerCallback(callbackID, "", false); err != nil {
		log.Printf("[conversation] callback ack failed: %v", err)
	}
}

// looksLikeURL reports whether text is a plausible media link.
func looksLikeURL(text string) bool {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
		return false
	}
	u, err := url.ParseRequestURI(text)
	return err == nil && u.Host != ""
}

