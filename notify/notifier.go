package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type MessageType string

const (
	MessageTypeDebug   = MessageType("DEBUG")
	MessageTypeInfo    = MessageType("INFO")
	MessageTypeWarning = MessageType("WARNING")
	MessageTypeError   = MessageType("ERROR")
)

type OperationType string

const (
	OperationReserve    = OperationType("RESERVE")
	OperationLock       = OperationType("LOCK")
	OperationRelease    = OperationType("RELEASE")
	OperationReleaseAll = OperationType("RELEASEALL")
)

const (
	timeLayout    = "2006-01-02 15:04:05.000"
	maxRecent     = 200
	notifyLogMode = 0644
)

type Notification struct {
	Time       time.Time     `json:"time"`
	Type       MessageType   `json:"type"`
	ResourceID string        `json:"resourceId"`
	Operation  OperationType `json:"operation"`
	NodeName   string        `json:"nodeName"`
	Message    string        `json:"message"`
}

func (n *Notification) String() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s\n",
		n.Time.Format(timeLayout), n.Type, n.ResourceID, n.Operation, n.NodeName, n.Message)
}

// Notifier is the administrator side channel. Notify never fails the caller.
type Notifier interface {
	Notify(msgType MessageType, operation OperationType, nodeName, resourceID, message string)
	Recent() []Notification
}

// FileNotifier appends notifications to a file and keeps the most recent ones in memory.
type FileNotifier struct {
	mutex  sync.Mutex
	path   string
	recent []Notification
}

func NewFileNotifier(path string) *FileNotifier {
	return &FileNotifier{
		path: path,
	}
}

func (f *FileNotifier) SetPath(path string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.path = path
}

func (f *FileNotifier) Path() string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.path
}

func (f *FileNotifier) Notify(msgType MessageType, operation OperationType, nodeName, resourceID, message string) {
	n := Notification{
		Time:       time.Now(),
		Type:       msgType,
		ResourceID: resourceID,
		Operation:  operation,
		NodeName:   nodeName,
		Message:    message,
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.recent = append(f.recent, n)
	if len(f.recent) > maxRecent {
		f.recent = f.recent[len(f.recent)-maxRecent:]
	}

	if f.path == "" {
		return
	}
	if err := f.append(n.String()); err != nil {
		logrus.WithError(err).Warnf("Failed to write admin notification to %v", f.path)
	}
}

func (f *FileNotifier) append(line string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, notifyLogMode)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(line); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (f *FileNotifier) Recent() []Notification {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	out := make([]Notification, len(f.recent))
	copy(out, f.recent)
	return out
}
