package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lordofthechatbot/server/adapters"
	"github.com/lordofthechatbot/server/domain/repositories"
)

func newBotService() *BotService {
	return NewBotService(adapters.NewMemoryBotRepository(), zap.NewNop())
}

func TestCreateBotDefaults(t *testing.T) {
	svc := newBotService()
	ctx := context.Background()

	bot, err := svc.CreateBot(ctx, "", "")
	if err != nil {
		t.Fatalf("CreateBot: %v", err)
	}
	if bot.Name != "New Bot" {
		t.Errorf("Name = %q", bot.Name)
	}
	if bot.WelcomeMessage != "Hello!" {
		t.Errorf("WelcomeMessage = %q", bot.WelcomeMessage)
	}
	if len(bot.AdminPass) != 6 {
		t.Errorf("AdminPass = %q, want 6 chars", bot.AdminPass)
	}
	if bot.ID == "" {
		t.Error("missing generated id")
	}
}

func TestUpdateBotPreservesIdentity(t *testing.T) {
	svc := newBotService()
	ctx := context.Background()

	bot, _ := svc.CreateBot(ctx, "Support", "Hi there")
	originalPass := bot.AdminPass
	originalCreated := bot.CreatedAt

	name := "Sales"
	updated, err := svc.UpdateBot(ctx, bot.ID, BotUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateBot: %v", err)
	}
	if updated.Name != "Sales" {
		t.Errorf("Name = %q", updated.Name)
	}
	if updated.WelcomeMessage != "Hi there" {
		t.Errorf("unspecified field changed: %q", updated.WelcomeMessage)
	}
	if updated.AdminPass != originalPass {
		t.Error("admin pass changed on update")
	}
	if !updated.CreatedAt.Equal(originalCreated) {
		t.Error("created_at changed on update")
	}
	if !updated.UpdatedAt.After(originalCreated) && updated.UpdatedAt.Equal(originalCreated) {
		t.Error("updated_at not refreshed")
	}
}

func TestUpdateBotIgnoresBlankName(t *testing.T) {
	svc := newBotService()
	ctx := context.Background()

	bot, _ := svc.CreateBot(ctx, "Support", "")
	blank := "   "
	updated, err := svc.UpdateBot(ctx, bot.ID, BotUpdate{Name: &blank})
	if err != nil {
		t.Fatalf("UpdateBot: %v", err)
	}
	if updated.Name != "Support" {
		t.Errorf("Name = %q, want unchanged", updated.Name)
	}
}

func TestListBotsSortedAndStripped(t *testing.T) {
	svc := newBotService()
	ctx := context.Background()

	first, _ := svc.CreateBot(ctx, "First", "")
	time.Sleep(2 * time.Millisecond)
	second, _ := svc.CreateBot(ctx, "Second", "")

	if _, err := svc.AddKnowledgeTexts(ctx, first.ID, []string{"fragment"}); err != nil {
		t.Fatalf("AddKnowledgeTexts: %v", err)
	}

	bots, err := svc.ListBots(ctx)
	if err != nil {
		t.Fatalf("ListBots: %v", err)
	}
	if len(bots) != 2 {
		t.Fatalf("len(bots) = %d", len(bots))
	}
	// Adding knowledge touched First, so it sorts ahead of Second.
	if bots[0].ID != first.ID || bots[1].ID != second.ID {
		t.Errorf("order = %s, %s", bots[0].Name, bots[1].Name)
	}
	for _, b := range bots {
		if len(b.Knowledge.Texts) != 0 {
			t.Errorf("bot %s listing includes knowledge", b.Name)
		}
	}
}

func TestVerifyAdminPass(t *testing.T) {
	svc := newBotService()
	ctx := context.Background()

	bot, _ := svc.CreateBot(ctx, "Support", "")

	if _, err := svc.VerifyAdminPass(ctx, bot.ID, bot.AdminPass); err != nil {
		t.Errorf("correct pass rejected: %v", err)
	}
	if _, err := svc.VerifyAdminPass(ctx, bot.ID, "WRONG1"); err != ErrAdminPassMismatch {
		t.Errorf("err = %v, want ErrAdminPassMismatch", err)
	}
	if _, err := svc.VerifyAdminPass(ctx, "missing-bot", "ANYPAS"); err != repositories.ErrBotNotFound {
		t.Errorf("err = %v, want ErrBotNotFound", err)
	}
}

func TestKnowledgeOperations(t *testing.T) {
	svc := newBotService()
	ctx := context.Background()

	bot, _ := svc.CreateBot(ctx, "Support", "")

	updated, err := svc.AddKnowledgeTexts(ctx, bot.ID, []string{" hours ", "", "returns"})
	if err != nil {
		t.Fatalf("AddKnowledgeTexts: %v", err)
	}
	if len(updated.Knowledge.Texts) != 2 {
		t.Fatalf("texts = %v", updated.Knowledge.Texts)
	}

	updated, err = svc.AddKnowledgeFile(ctx, bot.ID, "faq.txt", []string{"shipping info"})
	if err != nil {
		t.Fatalf("AddKnowledgeFile: %v", err)
	}
	if len(updated.Knowledge.Files) != 1 || updated.Knowledge.Files[0] != "faq.txt" {
		t.Fatalf("files = %v", updated.Knowledge.Files)
	}
	if len(updated.Knowledge.Texts) != 3 {
		t.Fatalf("texts = %v", updated.Knowledge.Texts)
	}

	updated, err = svc.RemoveKnowledgeText(ctx, bot.ID, 0)
	if err != nil {
		t.Fatalf("RemoveKnowledgeText: %v", err)
	}
	if len(updated.Knowledge.Texts) != 2 || updated.Knowledge.Texts[0].Text != "returns" {
		t.Fatalf("texts after removal = %v", updated.Knowledge.Texts)
	}

	if _, err := svc.RemoveKnowledgeText(ctx, bot.ID, 99); err == nil {
		t.Error("expected error for out-of-range index")
	}

	updated, err = svc.RemoveKnowledgeFile(ctx, bot.ID, "faq.txt")
	if err != nil {
		t.Fatalf("RemoveKnowledgeFile: %v", err)
	}
	if len(updated.Knowledge.Files) != 0 {
		t.Fatalf("files after removal = %v", updated.Knowledge.Files)
	}
	// The file's fragment goes with it; the remaining pasted fragment stays.
	if len(updated.Knowledge.Texts) != 1 || updated.Knowledge.Texts[0].Text != "returns" {
		t.Fatalf("texts after file removal = %v", updated.Knowledge.Texts)
	}
}

func TestAddKnowledgeFileRequiresName(t *testing.T) {
	svc := newBotService()
	ctx := context.Background()

	bot, _ := svc.CreateBot(ctx, "Support", "")
	if _, err := svc.AddKnowledgeFile(ctx, bot.ID, "  ", []string{"x"}); err == nil {
		t.Error("expected error for blank file name")
	}
}

func TestEmbedSnippet(t *testing.T) {
	snippet := EmbedSnippet("https://bots.example.com/", "bot-42")
	if !strings.Contains(snippet, "https://bots.example.com/widget/bot-42") {
		t.Errorf("snippet = %q", snippet)
	}
	if !strings.Contains(snippet, `allow="microphone"`) {
		t.Error("snippet missing microphone permission")
	}
}

func TestDeleteBot(t *testing.T) {
	svc := newBotService()
	ctx := context.Background()

	bot, _ := svc.CreateBot(ctx, "Support", "")
	if err := svc.DeleteBot(ctx, bot.ID); err != nil {
		t.Fatalf("DeleteBot: %v", err)
	}
	if _, err := svc.GetBot(ctx, bot.ID); err != repositories.ErrBotNotFound {
		t.Errorf("err = %v, want ErrBotNotFound", err)
	}
	if err := svc.DeleteBot(ctx, bot.ID); err != repositories.ErrBotNotFound {
		t.Errorf("double delete err = %v, want ErrBotNotFound", err)
	}
}
