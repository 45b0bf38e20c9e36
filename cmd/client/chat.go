package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

const (
	sidebarWidth  = 28
	localIDPrefix = "local-"
)

func isProvisional(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

type chatModel struct {
	api  *APIClient
	auth *AuthResponse
	ws   *WSClient
	wsCh chan ServerEvent

	convs    []Conversation
	contacts []Contact
	online   map[string]bool

	// Message list for the currently open partner. fetchSeq tags each
	// history fetch so a response for an abandoned view is discarded.
	msgs              []Message
	activePartner     string
	activePartnerName string
	fetchSeq          int

	editingID    string
	sidebarFocus bool
	selectIndex  int

	viewport  viewport.Model
	input     textinput.Model
	connected bool
	errMsg    string
	width     int
	height    int
}

type wsConnectedMsg struct {
	ws *WSClient
	ch chan ServerEvent
}

type wsEventMsg ServerEvent

type wsClosedMsg struct{}

type convsMsg struct {
	convs []Conversation
	err   error
}

type contactsMsg struct {
	contacts []Contact
	err      error
}

type historyMsg struct {
	partner string
	seq     int
	msgs    []Message
	err     error
}

type sendResultMsg struct {
	partner string
	tempID  string
	msg     *Message
	err     error
}

type editResultMsg struct {
	msg *Message
	err error
}

type deleteResultMsg struct {
	id  string
	err error
}

func newChatModel(api *APIClient, auth *AuthResponse, width, height int) chatModel {
	input := textinput.New()
	input.Placeholder = "type a message..."
	input.CharLimit = 4096
	input.Width = clampMin(width-sidebarWidth-8, 20)
	input.Focus()

	vpHeight := clampMin(height-6, 1)
	vpWidth := clampMin(width-sidebarWidth-4, 10)
	vp := viewport.New(vpWidth, vpHeight)

	return chatModel{
		api:      api,
		auth:     auth,
		online:   make(map[string]bool),
		viewport: vp,
		input:    input,
		width:    width,
		height:   height,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.connectWS(),
		m.loadConversations(),
		m.loadContacts(),
	)
}

func (m chatModel) connectWS() tea.Cmd {
	serverURL := m.api.serverURL
	token := m.auth.Token
	return func() tea.Msg {
		ws, err := ConnectWS(serverURL, token)
		if err != nil {
			return wsClosedMsg{}
		}
		ch := make(chan ServerEvent, 64)
		go ws.ReadLoop(ch)
		return wsConnectedMsg{ws: ws, ch: ch}
	}
}

func waitForEvent(ch chan ServerEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return wsClosedMsg{}
		}
		return wsEventMsg(evt)
	}
}

func (m chatModel) loadConversations() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		convs, err := api.Conversations(context.Background())
		return convsMsg{convs: convs, err: err}
	}
}

func (m chatModel) loadContacts() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		contacts, err := api.Contacts(context.Background())
		return contactsMsg{contacts: contacts, err: err}
	}
}

func (m chatModel) loadHistory(partner string, seq int) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		msgs, err := api.Messages(context.Background(), partner)
		return historyMsg{partner: partner, seq: seq, msgs: msgs, err: err}
	}
}

func (m chatModel) doSend(partner, tempID, text string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		msg, err := api.SendMessage(context.Background(), partner, text, "")
		return sendResultMsg{partner: partner, tempID: tempID, msg: msg, err: err}
	}
}

func (m chatModel) doEdit(id, text string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		msg, err := api.UpdateMessage(context.Background(), id, text)
		return editResultMsg{msg: msg, err: err}
	}
}

func (m chatModel) doDelete(id string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		deletedID, err := api.DeleteMessage(context.Background(), id)
		return deleteResultMsg{id: deletedID, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (chatModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = clampMin(m.width-sidebarWidth-4, 10)
		m.viewport.Height = clampMin(m.height-6, 1)
		m.input.Width = clampMin(m.width-sidebarWidth-8, 20)
		m.refreshViewport()
		return m, nil

	case wsConnectedMsg:
		m.ws = msg.ws
		m.wsCh = msg.ch
		m.connected = true
		return m, waitForEvent(m.wsCh)

	case wsClosedMsg:
		m.connected = false
		return m, nil

	case wsEventMsg:
		return m.handleEvent(ServerEvent(msg))

	case convsMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.convs = msg.convs
		return m, nil

	case contactsMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.contacts = msg.contacts
		return m, nil

	case historyMsg:
		if msg.partner != m.activePartner || msg.seq != m.fetchSeq {
			// Response for a view that is no longer open.
			return m, nil
		}
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.msgs = msg.msgs
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case sendResultMsg:
		return m.handleSendResult(msg)

	case editResultMsg:
		if msg.err != nil {
			m.errMsg = "edit failed: " + msg.err.Error()
			return m, nil
		}
		confirmed := *msg.msg
		partner := partnerOf(m.auth.UserID, confirmed)
		if partner == m.activePartner {
			m.msgs = applyUpdate(m.msgs, confirmed)
			m.refreshViewport()
		}
		m.convs = refreshConversationText(m.convs, partner, confirmed)
		return m, nil

	case deleteResultMsg:
		if msg.err != nil {
			m.errMsg = "delete failed: " + msg.err.Error()
			return m, nil
		}
		m.msgs = applyDelete(m.msgs, msg.id)
		m.refreshViewport()
		// The pair's newest message may have changed.
		return m, m.loadConversations()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleEvent merges one pushed event. Events for a partner other than the
// open one still bump that partner's list entry but never touch the
// rendered message list.
func (m chatModel) handleEvent(evt ServerEvent) (chatModel, tea.Cmd) {
	rearm := waitForEvent(m.wsCh)

	switch evt.Type {
	case "online":
		m.online = make(map[string]bool, len(evt.UserIDs))
		for _, id := range evt.UserIDs {
			m.online[id] = true
		}
		return m, rearm

	case "message.sent":
		if evt.Message == nil {
			return m, rearm
		}
		incoming := *evt.Message
		partner := partnerOf(m.auth.UserID, incoming)
		if partner == m.activePartner {
			m.msgs = mergeIncoming(m.msgs, incoming)
			m.refreshViewport()
			m.viewport.GotoBottom()
		}
		convs, ok := bumpConversation(m.convs, partner, incoming)
		m.convs = convs
		if !ok {
			return m, tea.Batch(rearm, m.loadConversations())
		}
		return m, rearm

	case "message.updated":
		if evt.Message == nil {
			return m, rearm
		}
		updated := *evt.Message
		partner := partnerOf(m.auth.UserID, updated)
		if partner == m.activePartner {
			m.msgs = applyUpdate(m.msgs, updated)
			m.refreshViewport()
		}
		m.convs = refreshConversationText(m.convs, partner, updated)
		return m, rearm

	case "message.deleted":
		partner := evt.SenderID
		if partner == m.auth.UserID {
			partner = evt.ReceiverID
		}
		if partner == m.activePartner {
			m.msgs = applyDelete(m.msgs, evt.MessageID)
			m.refreshViewport()
		}
		return m, tea.Batch(rearm, m.loadConversations())
	}

	return m, rearm
}

func (m chatModel) handleSendResult(msg sendResultMsg) (chatModel, tea.Cmd) {
	if msg.err != nil {
		// Roll back only the optimistic state this send introduced.
		if msg.partner == m.activePartner {
			m.msgs = dropProvisional(m.msgs, msg.tempID)
			m.refreshViewport()
		}
		m.errMsg = "send failed: " + msg.err.Error()
		return m, nil
	}

	confirmed := *msg.msg
	if msg.partner == m.activePartner {
		m.msgs = replaceProvisional(m.msgs, msg.tempID, confirmed)
		m.refreshViewport()
	}
	// The summary bump is partner-keyed, not view-keyed: it applies even
	// when the view moved on before the response arrived.
	convs, ok := bumpConversation(m.convs, msg.partner, confirmed)
	m.convs = convs
	if !ok {
		return m, m.loadConversations()
	}
	return m, nil
}

func (m chatModel) handleKey(key tea.KeyMsg) (chatModel, tea.Cmd) {
	switch key.String() {
	case "tab":
		m.sidebarFocus = !m.sidebarFocus
		if m.sidebarFocus {
			m.input.Blur()
		} else {
			m.input.Focus()
		}
		return m, nil

	case "esc":
		if m.editingID != "" {
			m.editingID = ""
			m.input.SetValue("")
		}
		m.errMsg = ""
		return m, nil

	case "up", "down":
		if m.sidebarFocus {
			total := len(m.convs) + len(m.startableContacts())
			if total == 0 {
				return m, nil
			}
			if key.String() == "up" {
				m.selectIndex--
			} else {
				m.selectIndex++
			}
			if m.selectIndex < 0 {
				m.selectIndex = total - 1
			}
			if m.selectIndex >= total {
				m.selectIndex = 0
			}
			return m, nil
		}

	case "enter":
		if m.sidebarFocus {
			return m.openSelected()
		}
		return m.submitInput()

	case "ctrl+e":
		if id, text, ok := m.latestOwnMessage(); ok {
			m.editingID = id
			m.input.SetValue(text)
			m.input.CursorEnd()
		}
		return m, nil

	case "ctrl+x":
		if id, _, ok := m.latestOwnMessage(); ok {
			return m, m.doDelete(id)
		}
		return m, nil
	}

	if m.sidebarFocus {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// startableContacts are contacts with no conversation entry yet.
func (m chatModel) startableContacts() []Contact {
	havePartner := make(map[string]bool, len(m.convs))
	for _, c := range m.convs {
		havePartner[c.PartnerID] = true
	}
	var out []Contact
	for _, c := range m.contacts {
		if !havePartner[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func (m chatModel) openSelected() (chatModel, tea.Cmd) {
	idx := m.selectIndex
	if idx < len(m.convs) {
		conv := m.convs[idx]
		return m.openPartner(conv.PartnerID, conv.PartnerName)
	}
	idx -= len(m.convs)
	startable := m.startableContacts()
	if idx < len(startable) {
		contact := startable[idx]
		return m.openPartner(contact.ID, contact.FullName)
	}
	return m, nil
}

// openPartner switches the view: previous partner's pushes stop merging
// into the rendered list, and a fresh history fetch starts for the new one.
func (m chatModel) openPartner(id, name string) (chatModel, tea.Cmd) {
	if id == m.activePartner {
		m.sidebarFocus = false
		m.input.Focus()
		return m, nil
	}
	m.activePartner = id
	m.activePartnerName = name
	m.msgs = nil
	m.fetchSeq++
	m.editingID = ""
	m.errMsg = ""
	m.sidebarFocus = false
	m.input.Focus()
	m.refreshViewport()
	return m, m.loadHistory(id, m.fetchSeq)
}

func (m chatModel) submitInput() (chatModel, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.activePartner == "" {
		return m, nil
	}

	if m.editingID != "" {
		id := m.editingID
		m.editingID = ""
		m.input.SetValue("")
		return m, m.doEdit(id, text)
	}

	// Optimistic append: render the provisional message immediately and
	// confirm it in the background.
	tempID := localIDPrefix + uuid.NewString()
	provisional := Message{
		ID:         tempID,
		SenderID:   m.auth.UserID,
		ReceiverID: m.activePartner,
		Text:       text,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	m.msgs = append(m.msgs, provisional)
	m.input.SetValue("")
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, m.doSend(m.activePartner, tempID, text)
}

func (m chatModel) latestOwnMessage() (id, text string, ok bool) {
	for i := len(m.msgs) - 1; i >= 0; i-- {
		msg := m.msgs[i]
		if msg.SenderID == m.auth.UserID && !isProvisional(msg.ID) {
			return msg.ID, msg.Text, true
		}
	}
	return "", "", false
}

func (m *chatModel) refreshViewport() {
	m.viewport.SetContent(m.renderMessages())
}

func (m chatModel) renderMessages() string {
	if m.activePartner == "" {
		return helpStyle.Render("select a conversation (tab, then up/down + enter)")
	}
	var b strings.Builder
	for _, msg := range m.msgs {
		line := m.renderMessage(msg)
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m chatModel) renderMessage(msg Message) string {
	name := m.activePartnerName
	style := recvMsgStyle
	if msg.SenderID == m.auth.UserID {
		name = "you"
		style = sentMsgStyle
	}

	ts := msg.CreatedAt
	if t, err := time.Parse(time.RFC3339Nano, msg.CreatedAt); err == nil {
		ts = t.Local().Format("15:04")
	}

	body := msg.Text
	if msg.ImageRef != "" {
		if body != "" {
			body += " "
		}
		body += labelStyle.Render("[image: " + msg.ImageRef + "]")
	}

	suffix := ""
	if msg.UpdatedAt != "" {
		suffix = labelStyle.Render(" (edited)")
	}
	if isProvisional(msg.ID) {
		suffix = labelStyle.Render(" (sending...)")
	}

	return fmt.Sprintf("%s %s %s%s", helpStyle.Render(ts), style.Render(name+":"), body, suffix)
}

func (m chatModel) View() string {
	sidebar := m.renderSidebar()

	status := connectedStyle.Render("● connected")
	if !m.connected {
		status = disconnectedStyle.Render("● offline")
	}

	title := headerStyle.Render("pigeon")
	if m.activePartnerName != "" {
		online := ""
		if m.online[m.activePartner] {
			online = sidebarOnlineStyle.Render(" (online)")
		}
		title = headerStyle.Render(m.activePartnerName) + online
	}

	inputLabel := "> "
	if m.editingID != "" {
		inputLabel = activeInputStyle.Render("edit> ")
	}

	errLine := ""
	if m.errMsg != "" {
		errLine = errorStyle.Render(m.errMsg)
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		title+"  "+status,
		separator(m.width-sidebarWidth),
		m.viewport.View(),
		separator(m.width-sidebarWidth),
		inputLabel+m.input.View(),
		errLine,
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", main)
}

func (m chatModel) renderSidebar() string {
	var b strings.Builder
	b.WriteString(sidebarTitleStyle.Render("conversations"))
	b.WriteString("\n")

	idx := 0
	for _, conv := range m.convs {
		b.WriteString(m.renderSidebarLine(idx, conv.PartnerID, conv.PartnerName, previewText(conv)))
		idx++
	}

	startable := m.startableContacts()
	if len(startable) > 0 {
		b.WriteString("\n")
		b.WriteString(sidebarTitleStyle.Render("contacts"))
		b.WriteString("\n")
		for _, contact := range startable {
			b.WriteString(m.renderSidebarLine(idx, contact.ID, contact.FullName, ""))
			idx++
		}
	}

	return sidebarBoxStyle.Width(sidebarWidth).Render(b.String())
}

func (m chatModel) renderSidebarLine(idx int, partnerID, name, preview string) string {
	marker := "  "
	if m.sidebarFocus && idx == m.selectIndex {
		marker = activeInputStyle.Render("> ")
	} else if partnerID == m.activePartner {
		marker = headerStyle.Render("* ")
	}

	dot := sidebarOfflineStyle.Render("·")
	if m.online[partnerID] {
		dot = sidebarOnlineStyle.Render("●")
	}

	line := marker + dot + " " + name
	if preview != "" {
		line += "\n    " + helpStyle.Render(truncate(preview, sidebarWidth-6))
	}
	return line + "\n"
}

func previewText(conv Conversation) string {
	if conv.LastMessageText != "" {
		return conv.LastMessageText
	}
	if conv.LastMessageImageRef != "" {
		return "[image]"
	}
	return ""
}

func truncate(s string, n int) string {
	if n <= 3 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func clampMin(v, minV int) int {
	if v < minV {
		return minV
	}
	return v
}
