//go:build windows

package spawn

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

type platformHandle struct {
	job windows.Handle
}

func applySysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		// Suspend until the child is assigned to its job object so early
		// grandchildren cannot escape the kill boundary.
		CreationFlags: windows.CREATE_SUSPENDED | windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// afterStart places the child in a fresh job object configured to kill every
// member when the job handle closes, then resumes the child.
func (h *Handle) afterStart() error {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return fmt.Errorf("spawn: create job object: %w", err)
	}
	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(job)
		return fmt.Errorf("spawn: configure job object: %w", err)
	}

	proc, err := windows.OpenProcess(
		windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE|windows.PROCESS_SUSPEND_RESUME,
		false,
		uint32(h.pid),
	)
	if err != nil {
		windows.CloseHandle(job)
		return fmt.Errorf("spawn: open child process: %w", err)
	}
	defer windows.CloseHandle(proc)

	if err := windows.AssignProcessToJobObject(job, proc); err != nil {
		windows.CloseHandle(job)
		return fmt.Errorf("spawn: assign child to job: %w", err)
	}
	h.platform.job = job
	return resumeMainThread(h.pid)
}

func (h *Handle) killGroup() error {
	if h.platform.job != 0 {
		// Already-terminated jobs return an error we treat as success.
		_ = windows.TerminateJobObject(h.platform.job, 1)
		return nil
	}
	return KillProcessGroupByPID(h.pid)
}

func (h *Handle) platformRelease() {
	if h.platform.job != 0 {
		windows.CloseHandle(h.platform.job)
		h.platform.job = 0
	}
}

// KillProcessGroupByPID terminates the process directly when no job object
// is available. "Not found" is success.
func KillProcessGroupByPID(pid int) error {
	proc, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return nil
	}
	defer windows.CloseHandle(proc)
	_ = windows.TerminateProcess(proc, 1)
	return nil
}

func resumeMainThread(pid int) error {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return fmt.Errorf("spawn: snapshot threads: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ThreadEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err := windows.Thread32First(snapshot, &entry); err == nil; err = windows.Thread32Next(snapshot, &entry) {
		if entry.OwnerProcessID != uint32(pid) {
			continue
		}
		thread, err := windows.OpenThread(windows.THREAD_SUSPEND_RESUME, false, entry.ThreadID)
		if err != nil {
			continue
		}
		_, _ = windows.ResumeThread(thread)
		windows.CloseHandle(thread)
	}
	return nil
}

func signalNumber(ps *os.ProcessState) int { return 1 }
